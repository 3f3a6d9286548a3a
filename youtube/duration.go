package youtube

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"feedsync/feed"
)

// MaxIDsPerRequest is the platform limit on ids per videos.list call.
const MaxIDsPerRequest = 50

// DefaultShortMaxSeconds is the longest duration still counted as a short.
const DefaultShortMaxSeconds = 60

var durationPattern = regexp.MustCompile(`PT(\d+H)?(\d+M)?(\d+S)?`)

// ParseDuration reads the hour, minute and second parts of an ISO-8601
// duration such as "PT1H2M3S". Missing parts count as zero, and text that
// does not match at all yields zero. Durations too long for time.Duration
// saturate at its maximum.
func ParseDuration(s string) time.Duration {
	secs := DurationSeconds(s)
	if secs > int64(math.MaxInt64/time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(secs) * time.Second
}

// DurationSeconds is ParseDuration in whole seconds, saturating at
// math.MaxInt64.
func DurationSeconds(s string) int64 {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	total := mulSat(part(m[1]), 3600)
	total = addSat(total, mulSat(part(m[2]), 60))
	return addSat(total, part(m[3]))
}

// part parses a group like "12M" into 12. Values past int64 saturate.
func part(group string) int64 {
	if len(group) < 2 {
		return 0
	}
	n, err := strconv.ParseInt(group[:len(group)-1], 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		return math.MaxInt64
	}
	if err != nil {
		return 0
	}
	return n
}

func mulSat(n, factor int64) int64 {
	if n > math.MaxInt64/factor {
		return math.MaxInt64
	}
	return n * factor
}

func addSat(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// Classifier marks videos as short-form from their platform durations.
type Classifier struct {
	platform Platform
	maxShort int64
	log      zerolog.Logger
}

// NewClassifier creates a classifier. A non-positive shortMaxSeconds means
// DefaultShortMaxSeconds.
func NewClassifier(platform Platform, shortMaxSeconds int, log zerolog.Logger) *Classifier {
	if shortMaxSeconds <= 0 {
		shortMaxSeconds = DefaultShortMaxSeconds
	}
	return &Classifier{
		platform: platform,
		maxShort: int64(shortMaxSeconds),
		log:      log,
	}
}

// IsShort reports whether an ISO-8601 duration is short-form.
func (c *Classifier) IsShort(duration string) bool {
	return DurationSeconds(duration) <= c.maxShort
}

// Classify sets IsShort on every video, in place, querying durations in
// chunks of MaxIDsPerRequest. A failed chunk is logged and its videos keep
// IsShort false. It returns the number of shorts found.
func (c *Classifier) Classify(ctx context.Context, videos []feed.Video) int {
	var ids []string
	seen := make(map[string]struct{}, len(videos))
	for _, v := range videos {
		if _, ok := seen[v.ID]; ok || v.ID == "" {
			continue
		}
		seen[v.ID] = struct{}{}
		ids = append(ids, v.ID)
	}

	durations := make(map[string]string, len(ids))
	for start := 0; start < len(ids); start += MaxIDsPerRequest {
		end := min(start+MaxIDsPerRequest, len(ids))
		chunk, err := c.platform.Durations(ctx, ids[start:end])
		if err != nil {
			c.log.Error().Err(err).Int("ids", end-start).Msg("duration lookup failed, videos left unclassified")
			continue
		}
		for id, d := range chunk {
			durations[id] = d
		}
	}

	shorts := 0
	for i := range videos {
		d, ok := durations[videos[i].ID]
		videos[i].IsShort = ok && c.IsShort(d)
		if videos[i].IsShort {
			shorts++
		}
	}
	return shorts
}
