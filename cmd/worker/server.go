package main

import (
	"context"
	"os"

	"github.com/hibiken/asynq"

	"paysync-backend/internal/shared"
	"paysync-backend/pkg/container"
	"paysync-backend/pkg/logger"
)

type asynqServer struct {
	*asynq.Server
}

func setupAsynqServer(c *container.Container, handlers *HandlerRegistry) *asynqServer {
	mux := asynq.NewServeMux()
	handlers.RegisterHandlers(mux)

	srv := asynq.NewServer(
		c.RedisClientOpt(),
		asynq.Config{
			Queues:      shared.QueuePriorities,
			Concurrency: c.Config.Queue.Concurrency,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.ErrorFields("Task failed", err, map[string]interface{}{
					"type":      task.Type(),
					"retried":   retried,
					"max_retry": maxRetry,
				})
			}),
		},
	)

	go func() {
		logger.Info("Worker starting", map[string]interface{}{"concurrency": c.Config.Queue.Concurrency})
		if err := srv.Run(mux); err != nil {
			logger.Error("Worker failed", err)
			os.Exit(1)
		}
	}()

	return &asynqServer{Server: srv}
}

// Shutdown waits for in-flight tasks up to asynq's shutdown timeout.
func (s *asynqServer) Shutdown() {
	s.Server.Shutdown()
}
