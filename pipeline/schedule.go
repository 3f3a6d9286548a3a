package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

// Schedule runs SyncAll on the cron spec until ctx is cancelled. A tick that
// fires while the previous run is still going is skipped. Run errors are
// logged; only an invalid spec is returned.
func (s *Syncer) Schedule(ctx context.Context, spec string) error {
	var running atomic.Bool
	c := cron.New()

	_, err := c.AddFunc(spec, func() {
		if !running.CompareAndSwap(false, true) {
			s.log.Warn().Str("schedule", spec).Msg("previous sync still running, tick skipped")
			return
		}
		defer running.Store(false)

		if _, err := s.SyncAll(ctx); err != nil {
			s.log.Error().Err(err).Msg("scheduled sync failed")
		}
	})
	if err != nil {
		return fmt.Errorf("pipeline: invalid schedule %q: %w", spec, err)
	}

	c.Start()
	s.log.Info().Str("schedule", spec).Msg("scheduler started")

	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
	return nil
}
