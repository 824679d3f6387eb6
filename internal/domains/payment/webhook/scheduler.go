package webhook

import (
	"context"
	"time"

	"paysync-backend/pkg/logger"
)

// Scheduler runs dispatch for a delivery after the gateway has been
// acknowledged.
type Scheduler interface {
	Schedule(ctx context.Context, body []byte, verification string) error
}

// InlineScheduler dispatches in a goroutine of the API process. It is used
// when no task queue is configured.
type InlineScheduler struct {
	Dispatcher *Dispatcher
	Timeout    time.Duration
}

func (s *InlineScheduler) Schedule(ctx context.Context, body []byte, verification string) error {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	// outlive the request that delivered the event
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	go func() {
		defer cancel()
		if err := s.Dispatcher.Dispatch(ctx, body, verification); err != nil {
			logger.Error("Inline webhook dispatch failed", err)
		}
	}()
	return nil
}
