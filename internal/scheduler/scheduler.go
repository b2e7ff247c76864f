// Package scheduler runs periodic fleet-wide secret syncs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/d0dg3r/dockhand/internal/models"
)

// FleetSyncer runs one sync pass across all Git-backed stacks.
type FleetSyncer interface {
	SyncAllStackSecrets(ctx context.Context) map[string]*models.SyncResult
}

// Scheduler triggers fleet syncs on a cron expression.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

// New creates a Scheduler that runs syncer on the given cron expression.
func New(schedule string, syncer FleetSyncer, log *zap.Logger) (*Scheduler, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		results := syncer.SyncAllStackSecrets(context.Background())
		for stack, result := range results {
			if !result.Success && !result.Skipped {
				log.Warn("scheduled sync failed for stack",
					zap.String("stack", stack),
					zap.Strings("errors", result.Errors),
				)
			}
		}
		log.Info("scheduled fleet sync finished", zap.Int("stacks", len(results)))
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", schedule, err)
	}
	return &Scheduler{cron: c, log: log}, nil
}

// Start begins running scheduled syncs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
