package youtube

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"

	feedhttp "feedsync/http"
	"feedsync/internal/retry"
)

// apiURL is used to pick the rate limiter bucket for Data API calls.
const apiURL = "https://youtube.googleapis.com/youtube/v3"

// APIConfig configures an APIClient.
type APIConfig struct {
	APIKey string
	// Timeout bounds every single API request, retries excluded.
	Timeout time.Duration
	Retry   retry.Config
	// Limiter throttles API calls. Nil means unlimited.
	Limiter *feedhttp.RateLimiter
	// Options are appended to the client options, e.g. to point the client
	// at a different endpoint.
	Options []option.ClientOption
}

// APIClient implements Platform with the YouTube Data API v3.
type APIClient struct {
	service *ytapi.Service
	timeout time.Duration
	retry   retry.Config
	limiter *feedhttp.RateLimiter
}

// NewAPIClient creates a Data API client authenticated with an API key.
func NewAPIClient(ctx context.Context, cfg APIConfig) (*APIClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	opts := append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, cfg.Options...)
	service, err := ytapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &APIClient{
		service: service,
		timeout: timeout,
		retry:   cfg.Retry,
		limiter: cfg.Limiter,
	}, nil
}

// UploadsForHandle looks the handle up with channels.list forHandle.
func (c *APIClient) UploadsForHandle(ctx context.Context, handle string) (string, error) {
	var playlistID string
	err := c.call(ctx, func(ctx context.Context) error {
		resp, err := c.service.Channels.List([]string{"contentDetails"}).
			ForHandle(handle).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 || resp.Items[0].ContentDetails == nil ||
			resp.Items[0].ContentDetails.RelatedPlaylists == nil ||
			resp.Items[0].ContentDetails.RelatedPlaylists.Uploads == "" {
			return retry.Permanent(ErrChannelNotFound)
		}
		playlistID = resp.Items[0].ContentDetails.RelatedPlaylists.Uploads
		return nil
	})
	if err != nil {
		return "", err
	}
	return playlistID, nil
}

// RecentUploads lists the first page of a playlist, n items at most.
func (c *APIClient) RecentUploads(ctx context.Context, playlistID string, n int) ([]Upload, error) {
	var uploads []Upload
	err := c.call(ctx, func(ctx context.Context) error {
		resp, err := c.service.PlaylistItems.List([]string{"snippet"}).
			PlaylistId(playlistID).
			MaxResults(int64(n)).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}

		uploads = make([]Upload, 0, len(resp.Items))
		for _, item := range resp.Items {
			s := item.Snippet
			if s == nil || s.ResourceId == nil || s.ResourceId.VideoId == "" {
				continue
			}
			uploads = append(uploads, Upload{
				VideoID:      s.ResourceId.VideoId,
				Title:        s.Title,
				Thumbnail:    thumbnailURL(s.Thumbnails),
				ChannelTitle: s.ChannelTitle,
				ChannelID:    s.ChannelId,
				PublishedAt:  s.PublishedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(uploads) > n {
		uploads = uploads[:n]
	}
	return uploads, nil
}

// Durations queries videos.list contentDetails for the given ids.
func (c *APIClient) Durations(ctx context.Context, videoIDs []string) (map[string]string, error) {
	if len(videoIDs) > MaxIDsPerRequest {
		return nil, fmt.Errorf("youtube: %d ids exceed the per-request limit of %d", len(videoIDs), MaxIDsPerRequest)
	}

	durations := make(map[string]string, len(videoIDs))
	if len(videoIDs) == 0 {
		return durations, nil
	}
	err := c.call(ctx, func(ctx context.Context) error {
		resp, err := c.service.Videos.List([]string{"contentDetails"}).
			Id(videoIDs...).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		for _, item := range resp.Items {
			if item.ContentDetails != nil {
				durations[item.Id] = item.ContentDetails.Duration
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return durations, nil
}

// call runs fn with retries, applying the rate limit and the per-request
// timeout to every attempt.
func (c *APIClient) call(ctx context.Context, fn func(context.Context) error) error {
	return retry.Do(ctx, c.retry, apiErrorClassifier, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx, apiURL); err != nil {
			return err
		}
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		err := fn(reqCtx)
		if err != nil && ctx.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return &TimeoutError{Timeout: c.timeout, Err: err}
		}
		return err
	})
}

// TimeoutError reports a single attempt that ran past the request timeout
// while the caller's context was still live. Err is the attempt's error.
type TimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("youtube: request timed out after %s: %v", e.Timeout, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// thumbnailURL prefers the medium rendition and falls back to high.
func thumbnailURL(t *ytapi.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	if t.Medium != nil && t.Medium.Url != "" {
		return t.Medium.Url
	}
	if t.High != nil {
		return t.High.Url
	}
	return ""
}

// apiErrorClassifier retries quota bursts, server errors and network
// failures. Any other API error is final.
func apiErrorClassifier(err error) bool {
	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		return true
	}
	if !retry.IsRetryable(err) {
		return false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		case http.StatusForbidden:
			for _, item := range apiErr.Errors {
				if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
					return true
				}
			}
			return false
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return strings.Contains(err.Error(), "timed out") || strings.Contains(err.Error(), "connection reset")
}
