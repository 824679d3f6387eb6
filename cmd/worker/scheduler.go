package main

import (
	"os"

	"paysync-backend/internal/infrastructure/queue"
	"paysync-backend/pkg/container"
	"paysync-backend/pkg/logger"
)

// asynqScheduler wraps queue.Scheduler
type asynqScheduler struct {
	*queue.Scheduler
}

func setupScheduler(c *container.Container) *asynqScheduler {
	scheduler := queue.NewScheduler(c.RedisClientOpt(), c.Config.Jobs)

	if err := scheduler.RegisterJobs(); err != nil {
		logger.Error("Failed to register scheduled jobs", err)
		os.Exit(1)
	}

	go func() {
		if err := scheduler.Start(); err != nil {
			logger.Error("Scheduler failed", err)
			os.Exit(1)
		}
	}()

	return &asynqScheduler{Scheduler: scheduler}
}
