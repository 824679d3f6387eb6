package queue

import (
	"time"

	"github.com/hibiken/asynq"

	"paysync-backend/internal/config"
	"paysync-backend/internal/domains/payment/job"
	"paysync-backend/internal/shared"
	"paysync-backend/internal/shared/utils"
	"paysync-backend/pkg/logger"
)

// Scheduler enqueues the periodic payment jobs.
type Scheduler struct {
	scheduler *asynq.Scheduler
	jobConfig config.JobConfig
}

func NewScheduler(redisOpt asynq.RedisClientOpt, jobConfig config.JobConfig) *Scheduler {
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
		LogLevel: asynq.InfoLevel,
	})

	return &Scheduler{
		scheduler: scheduler,
		jobConfig: jobConfig,
	}
}

func (s *Scheduler) RegisterJobs() error {
	return s.registerReconcileOpenAuthorizationsJob()
}

// ================================================
// Reconcile open authorizations (every 6 hours by default)
// ================================================
// Catches captures, voids and expiries made outside the app whose webhook
// never arrived.
func (s *Scheduler) registerReconcileOpenAuthorizationsJob() error {
	task, err := utils.NewTask(shared.TypeReconcileOpenAuthorizations, job.ReconcileOpenAuthorizationsPayload{
		MinAgeDays: s.jobConfig.ReconcileMinAgeDays,
		Limit:      s.jobConfig.ReconcileBatchSize,
	})
	if err != nil {
		return err
	}

	entryID, err := s.scheduler.Register(
		s.jobConfig.ReconcileCron,
		task,
		asynq.Queue(shared.QueueReconcile),
		asynq.MaxRetry(1),
		asynq.Timeout(30*time.Minute),
		// a slow run must not overlap the next one
		asynq.Unique(time.Hour),
	)
	if err != nil {
		logger.Error("Failed to register ReconcileOpenAuthorizations job", err)
		return err
	}

	logger.Info("Registered ReconcileOpenAuthorizations", map[string]interface{}{
		"cron":     s.jobConfig.ReconcileCron,
		"entry_id": entryID,
	})
	return nil
}

func (s *Scheduler) Start() error {
	return s.scheduler.Start()
}

func (s *Scheduler) Shutdown() {
	s.scheduler.Shutdown()
}
