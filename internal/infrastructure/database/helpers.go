package database

import (
	"context"
	"fmt"
	"time"

	"paysync-backend/internal/infrastructure/metrics"
	"paysync-backend/pkg/logger"
)

// HealthCheck pings the database with a short deadline.
func (db *PostgresDB) HealthCheck(ctx context.Context) error {
	if db.Pool == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Close is safe to call more than once.
func (db *PostgresDB) Close() error {
	if db.Pool == nil {
		return nil
	}
	db.Pool.Close()
	db.Pool = nil
	logger.Info("PostgreSQL pool closed", map[string]interface{}{})
	return nil
}

// MonitorPoolHealth exports pool gauges and warns on saturation until ctx is
// done. Run it in its own goroutine.
func (db *PostgresDB) MonitorPoolHealth(ctx context.Context, interval time.Duration) {
	if db.Pool == nil {
		return
	}
	go metrics.StartPoolStatsCollector(ctx, db.Pool, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := db.Pool.Stat()
			if stats.MaxConns() == 0 {
				continue
			}
			utilization := float64(stats.AcquiredConns()) / float64(stats.MaxConns()) * 100
			if utilization > 80 {
				logger.Warn("High database pool utilization", map[string]interface{}{
					"acquired":    stats.AcquiredConns(),
					"max":         stats.MaxConns(),
					"utilization": utilization,
				})
			}
			if n := stats.AcquireCount(); n > 0 {
				if avg := stats.AcquireDuration() / time.Duration(n); avg > 100*time.Millisecond {
					logger.Warn("High database acquire latency", map[string]interface{}{"avg": avg.String()})
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
