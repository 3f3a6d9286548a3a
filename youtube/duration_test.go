package youtube

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedsync/feed"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"PT1M30S", 90 * time.Second},
		{"PT45S", 45 * time.Second},
		{"PT1H", time.Hour},
		{"PT1H2M3S", time.Hour + 2*time.Minute + 3*time.Second},
		{"PT60S", 60 * time.Second},
		{"PT1M", time.Minute},
		{"P1DT2M", 0},
		{"", 0},
		{"P0D", 0},
		{"garbage", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDuration(tt.in))
		})
	}
}

func TestDurationSeconds_Saturates(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"PT1H2M3S", 3723},
		{"PT3000000H", 3000000 * 3600},
		{"PT9999999999999999999S", math.MaxInt64},
		{"PT9223372036854775807H", math.MaxInt64},
		{"PT9223372036854775807S1S", math.MaxInt64},
		{"PT2562047788015216H59M", math.MaxInt64},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, DurationSeconds(tt.in))
		})
	}

	assert.Equal(t, time.Duration(math.MaxInt64), ParseDuration("PT3000000H"))
}

func TestClassifier_IsShort(t *testing.T) {
	c := NewClassifier(nil, 0, zerolog.Nop())

	assert.False(t, c.IsShort("PT1M30S"))
	assert.True(t, c.IsShort("PT45S"))
	assert.True(t, c.IsShort("PT1M"))
	assert.False(t, c.IsShort("PT1M1S"))
	assert.True(t, c.IsShort(""))
	assert.False(t, c.IsShort("PT3000000H"))
	assert.False(t, c.IsShort("PT9999999999999999999S"))

	strict := NewClassifier(nil, 30, zerolog.Nop())
	assert.False(t, strict.IsShort("PT45S"))
}

func TestClassifier_Classify(t *testing.T) {
	p := &fakePlatform{durations: map[string]string{
		"long":  "PT1M30S",
		"short": "PT45S",
		"zero":  "",
	}}
	videos := []feed.Video{{ID: "long"}, {ID: "short"}, {ID: "zero"}, {ID: "unknown"}, {ID: "short"}}

	shorts := NewClassifier(p, 0, zerolog.Nop()).Classify(context.Background(), videos)

	assert.Equal(t, 3, shorts)
	assert.False(t, videos[0].IsShort)
	assert.True(t, videos[1].IsShort)
	assert.True(t, videos[2].IsShort)
	assert.False(t, videos[3].IsShort, "no duration data")
	assert.True(t, videos[4].IsShort, "shares the id")
	require.Len(t, p.durationCalls, 1)
	assert.Len(t, p.durationCalls[0], 4)
}

func TestClassifier_ChunksRequests(t *testing.T) {
	p := &fakePlatform{durations: map[string]string{}}
	var videos []feed.Video
	for i := 0; i < 120; i++ {
		id := fmt.Sprintf("v%03d", i)
		p.durations[id] = "PT10S"
		videos = append(videos, feed.Video{ID: id})
	}

	shorts := NewClassifier(p, 0, zerolog.Nop()).Classify(context.Background(), videos)

	assert.Equal(t, 120, shorts)
	require.Len(t, p.durationCalls, 3)
	assert.Len(t, p.durationCalls[0], 50)
	assert.Len(t, p.durationCalls[1], 50)
	assert.Len(t, p.durationCalls[2], 20)
}

func TestClassifier_FailedChunkDegrades(t *testing.T) {
	p := &fakePlatform{durations: map[string]string{}}
	var videos []feed.Video
	for i := 0; i < 60; i++ {
		id := fmt.Sprintf("v%03d", i)
		p.durations[id] = "PT10S"
		videos = append(videos, feed.Video{ID: id, IsShort: true})
	}
	p.failDur = func(ids []string) error {
		if ids[0] == "v000" {
			return errors.New("quota")
		}
		return nil
	}

	shorts := NewClassifier(p, 0, zerolog.Nop()).Classify(context.Background(), videos)

	assert.Equal(t, 10, shorts)
	assert.False(t, videos[0].IsShort)
	assert.False(t, videos[49].IsShort)
	assert.True(t, videos[50].IsShort)
}
