// Package youtube resolves registry channels to their recent uploads through
// the YouTube Data API and classifies uploads as short-form by duration.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for channel resolution.
var (
	ErrChannelNotFound      = errors.New("youtube: channel not found")
	ErrUnsupportedChannelID = errors.New("youtube: unsupported channel identifier")
	ErrMissingAPIKey        = errors.New("youtube: api key required")
)

// Upload is one item of a channel's upload collection.
type Upload struct {
	VideoID      string
	Title        string
	Thumbnail    string
	ChannelTitle string
	ChannelID    string
	PublishedAt  string
}

// Platform is the subset of the video platform used by a sync run.
type Platform interface {
	// UploadsForHandle returns the upload collection id of the channel with
	// the given handle, or ErrChannelNotFound.
	UploadsForHandle(ctx context.Context, handle string) (string, error)

	// RecentUploads returns up to n of the most recent items of a collection.
	RecentUploads(ctx context.Context, playlistID string, n int) ([]Upload, error)

	// Durations returns the ISO-8601 duration of each requested video that
	// the platform knows about, keyed by video id. At most MaxIDsPerRequest
	// ids may be requested at once.
	Durations(ctx context.Context, videoIDs []string) (map[string]string, error)
}

// ResolveError wraps a failure to resolve one registry channel.
type ResolveError struct {
	Channel string
	Err     error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("youtube: resolve %s: %v", e.Channel, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// IsHandle reports whether id is a channel handle ("@name").
func IsHandle(id string) bool {
	return strings.HasPrefix(id, "@")
}

// UploadsPlaylistID derives the upload collection of a canonical channel id
// by replacing its "UC" prefix with "UU". ok is false for other identifiers.
func UploadsPlaylistID(channelID string) (string, bool) {
	if rest, found := strings.CutPrefix(channelID, "UC"); found && rest != "" {
		return "UU" + rest, true
	}
	return "", false
}
