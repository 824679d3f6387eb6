package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paysync-backend/internal/domains/payment/model"
	"paysync-backend/pkg/container"
	"paysync-backend/pkg/logger"
)

func Serve() {
	appContainer, err := container.NewContainer()
	if err != nil {
		logger.Error("Failed to initialize container", err)
		os.Exit(1)
	}
	defer appContainer.Cleanup()

	checkGatewayCredentials(appContainer)

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	go appContainer.DB.MonitorPoolHealth(monitorCtx, 30*time.Second)

	router := SetupRouter(appContainer)

	port := appContainer.Config.App.Port
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: router,
		// gateway calls may take up to the PayPal request timeout
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   appContainer.Config.PayPal.RequestTimeout + 15*time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Info("Server starting", map[string]interface{}{
			"port":        port,
			"environment": appContainer.Config.App.Environment,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start server", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server", map[string]interface{}{})

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", err)
	}
	logger.Info("Server exited", map[string]interface{}{})
}

// checkGatewayCredentials warns early about a bad client id or secret
// outside development. The server still starts.
func checkGatewayCredentials(c *container.Container) {
	if c.Config.App.IsDevelopment() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.Config.PayPal.RequestTimeout)
	defer cancel()

	if err := c.Gateways.ForSession("startup").ValidateCredentials(ctx); err != nil {
		logger.Warn("PayPal credentials could not be validated", map[string]interface{}{
			"error":    err.Error(),
			"base_url": c.Config.PayPal.BaseURL,
			"code":     model.ErrCodeGatewayUnavailable,
		})
	}
}
