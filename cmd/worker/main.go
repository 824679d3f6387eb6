package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"paysync-backend/pkg/container"
	"paysync-backend/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	c, err := container.NewContainer()
	if err != nil {
		logger.Init(os.Getenv("APP_ENV"))
		logger.Error("Failed to initialize container", err)
		os.Exit(1)
	}
	defer c.Cleanup()

	handlers := initializeHandlers(c)
	srv := setupAsynqServer(c, handlers)
	scheduler := setupScheduler(c)

	if err := startServices(c); err != nil {
		logger.Error("Worker health check failed", err)
		scheduler.Shutdown()
		srv.Shutdown()
		return
	}

	waitForShutdown(srv, scheduler)
}

func waitForShutdown(srv *asynqServer, scheduler *asynqScheduler) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Worker shutting down", map[string]interface{}{})
	scheduler.Shutdown()
	srv.Shutdown()
	logger.Info("Worker stopped", map[string]interface{}{})
}
