package coordinator

import (
	"context"
	"log/slog"

	"go-onboard/internal/core/ports"
	"go-onboard/internal/domain"
	"go-onboard/internal/metrics"
)

// Coordinator consumes step-changed events from every engine instance,
// writes the audit log and counts finished onboardings.
type Coordinator struct {
	eventBus ports.EventBus
	logger   *slog.Logger
	metrics  metrics.CoordinatorMetrics
}

func NewCoordinator(bus ports.EventBus, logger *slog.Logger, m metrics.CoordinatorMetrics) *Coordinator {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Coordinator{
		eventBus: bus,
		logger:   logger,
		metrics:  m,
	}
}

// Start blocks until ctx is cancelled or the event stream closes. Call it
// from main as a goroutine.
func (c *Coordinator) Start(ctx context.Context) error {
	events, err := c.eventBus.SubscribeStepChanged(ctx)
	if err != nil {
		return err
	}
	c.logger.Info("coordinator started, listening for step changes")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("coordinator shutting down")
			return nil

		case event, ok := <-events:
			if !ok {
				c.logger.Warn("step change stream closed")
				return nil
			}
			c.handleStepChanged(event)
		}
	}
}

func (c *Coordinator) handleStepChanged(event domain.StepChangedEvent) {
	c.metrics.IncEventsSeen()

	c.logger.Info("audit: onboarding step changed",
		"event_id", event.ID,
		"owner_id", event.OwnerID,
		"op", event.Op,
		"from", event.From,
		"to", event.To,
		"version", event.Version,
		"occurred_at", event.OccurredAt,
	)

	if event.Finished() {
		c.metrics.IncOnboardingsCompleted()
		c.logger.Info("onboarding completed", "owner_id", event.OwnerID)
	}
}
