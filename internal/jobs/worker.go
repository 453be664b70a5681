package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/streamvault/streamvault/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultPollInterval = 15 * time.Second
	// drainBatchSize caps how many due jobs one pass picks up.
	drainBatchSize = 50

	backoffBase = 30 * time.Second
	backoffCap  = time.Hour
)

// jobsProcessedTotal counts worker job executions by type and outcome.
var jobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "streamvault_jobs_processed_total",
	Help: "Lifecycle jobs processed by the worker, by type and outcome.",
}, []string{"type", "outcome"})

// ExecutorFunc performs one job type's logic.
type ExecutorFunc func(ctx context.Context, job *models.Job) error

// Worker drains due jobs on a fixed interval and applies retry/backoff
// bookkeeping. At-least-once: a job ends in succeeded or failed, never
// disappears, and attempts never exceed the budget.
type Worker struct {
	db        *gorm.DB
	executors map[string]ExecutorFunc
	interval  time.Duration
	now       func() time.Time
}

// NewWorker constructs a worker dispatching to the given executors.
func NewWorker(db *gorm.DB, execs *Executors, interval time.Duration) *Worker {
	if db == nil || execs == nil {
		return nil
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Worker{
		db:        db,
		executors: execs.dispatchTable(),
		interval:  interval,
		now:       time.Now,
	}
}

// Start runs the worker loop in the background.
func (w *Worker) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go w.run(ctx)
	log.Infof("job worker started (interval=%s)", w.interval)
}

func (w *Worker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				log.WithError(err).Warn("job worker: pass failed")
			}
		}
	}
}

// RunOnce drains all currently due pending jobs.
func (w *Worker) RunOnce(ctx context.Context) error {
	if w == nil || w.db == nil {
		return fmt.Errorf("jobs: worker not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := w.now().UTC()
	var due []models.Job
	if errFind := w.db.WithContext(ctx).
		Where("status = ? AND next_run_at <= ?", models.JobStatusPending, now).
		Order("next_run_at ASC, id ASC").
		Limit(drainBatchSize).
		Find(&due).Error; errFind != nil {
		return fmt.Errorf("jobs: select due: %w", errFind)
	}

	for i := range due {
		w.process(ctx, &due[i])
	}
	return nil
}

// process executes one job and records the outcome. Local account state is
// only ever touched inside executors after remote success; this method
// touches nothing but the job row.
func (w *Worker) process(ctx context.Context, job *models.Job) {
	now := w.now().UTC()

	job.Attempts++
	if errUpdate := w.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", job.ID).
		Updates(map[string]any{"attempts": job.Attempts, "updated_at": now}).Error; errUpdate != nil {
		log.WithError(errUpdate).Warnf("job worker: record attempt for job %d", job.ID)
		return
	}

	exec, ok := w.executors[job.Type]
	if !ok {
		w.finish(ctx, job, models.JobStatusFailed, fmt.Sprintf("unknown job type %q", job.Type))
		jobsProcessedTotal.WithLabelValues(job.Type, "failed").Inc()
		return
	}

	errExec := exec(ctx, job)
	if errExec == nil {
		w.finish(ctx, job, models.JobStatusSucceeded, "")
		jobsProcessedTotal.WithLabelValues(job.Type, "succeeded").Inc()
		return
	}

	log.WithError(errExec).Warnf("job worker: job %d (%s, attempt %d/%d) failed", job.ID, job.Type, job.Attempts, job.MaxAttempts)

	if job.Attempts >= job.MaxAttempts {
		w.finish(ctx, job, models.JobStatusFailed, errExec.Error())
		jobsProcessedTotal.WithLabelValues(job.Type, "failed").Inc()
		return
	}

	nextRun := w.now().UTC().Add(backoffFor(job.Attempts))
	if errUpdate := w.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", job.ID).
		Updates(map[string]any{
			"last_error":  errExec.Error(),
			"next_run_at": nextRun,
			"updated_at":  w.now().UTC(),
		}).Error; errUpdate != nil {
		log.WithError(errUpdate).Warnf("job worker: reschedule job %d", job.ID)
	}
	jobsProcessedTotal.WithLabelValues(job.Type, "retried").Inc()
}

// finish moves a job to a terminal status.
func (w *Worker) finish(ctx context.Context, job *models.Job, status models.JobStatus, lastError string) {
	updates := map[string]any{
		"status":     status,
		"updated_at": w.now().UTC(),
	}
	if lastError != "" {
		updates["last_error"] = lastError
	}
	if errUpdate := w.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", job.ID).Updates(updates).Error; errUpdate != nil {
		log.WithError(errUpdate).Warnf("job worker: finish job %d", job.ID)
		return
	}
	job.Status = status
	job.LastError = lastError
}

// backoffFor returns the retry delay after the given attempt count. The
// delay strictly increases with attempts so a persistently broken panel is
// never hot-looped.
func backoffFor(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := backoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= backoffCap {
			return backoffCap
		}
	}
	return delay
}
