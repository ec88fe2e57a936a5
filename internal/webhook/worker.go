package webhook

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultInterval = 5 * time.Second
	batchSize       = 10
)

type Worker struct {
	service  *Service
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

func NewWorker(service *Service, logger *slog.Logger) *Worker {
	return &Worker{
		service:  service,
		logger:   logger.With("component", "webhook_worker"),
		interval: defaultInterval,
		stopCh:   make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("webhook worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("webhook worker stopped")
			return
		case <-w.stopCh:
			w.logger.Info("webhook worker stopped")
			return
		case <-ticker.C:
			w.processQueue(ctx)
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
}

func (w *Worker) processQueue(ctx context.Context) {
	for _, job := range w.service.due(batchSize) {
		if err := w.service.post(ctx, job.EventType, job.Payload); err != nil {
			w.scheduleRetry(job, err.Error())
			continue
		}
		w.logger.Info("webhook job completed", "job_id", job.ID, "attempts", job.Attempts+1)
	}
}

func (w *Worker) scheduleRetry(job *Job, errorMsg string) {
	job.Attempts++
	job.LastError = errorMsg

	if job.Attempts >= job.MaxAttempts {
		w.logger.Warn("webhook job failed", "job_id", job.ID, "event", job.EventType, "error", errorMsg)
		return
	}

	delay := time.Duration(1<<job.Attempts) * time.Second
	job.NextRetryAt = w.service.now().Add(delay)
	w.service.requeue(job)

	w.logger.Info("webhook job scheduled for retry",
		"job_id", job.ID,
		"attempts", job.Attempts,
		"next_retry", job.NextRetryAt,
	)
}
