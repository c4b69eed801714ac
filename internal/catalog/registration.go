package catalog

import (
	"context"
	"time"

	"github.com/group17/smartchill/internal/registry"
)

// Retry schedule for one registration batch. The registry may still be
// booting (or briefly restarting) when an attempt lands, so failed
// attempts back off and retry before giving up on the batch.
var registerBackoff = []time.Duration{
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
}

// RegisterWithBackoff registers a service, retrying with increasing delays
// until one attempt succeeds or the schedule is exhausted.
//
// Returns nil on success; the last error otherwise. The context aborts the
// wait between attempts.
func (c *Client) RegisterWithBackoff(ctx context.Context, svc registry.Service) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = c.RegisterService(ctx, svc)
		if lastErr == nil {
			return nil
		}
		if attempt >= len(registerBackoff) {
			return lastErr
		}

		c.logger.Warn("service registration failed, retrying",
			"service_id", svc.ServiceID,
			"attempt", attempt+1,
			"retry_in", registerBackoff[attempt],
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(registerBackoff[attempt]):
		}
	}
}

// KeepRegistered re-registers the service on a fixed cadence so the
// registry's lastUpdate acts as a liveness heartbeat. It blocks until the
// context is cancelled.
//
// Every attempt, initial and periodic, runs as a backoff batch; a batch
// that exhausts its schedule is abandoned until the next tick.
func (c *Client) KeepRegistered(ctx context.Context, svc registry.Service, interval time.Duration) {
	if err := c.RegisterWithBackoff(ctx, svc); err != nil {
		c.logger.Error("initial service registration failed", "service_id", svc.ServiceID, "error", err)
	} else {
		c.logger.Info("service registered", "service_id", svc.ServiceID)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.RegisterWithBackoff(ctx, svc); err != nil {
				c.logger.Warn("service re-registration failed", "service_id", svc.ServiceID, "error", err)
			}
		}
	}
}
