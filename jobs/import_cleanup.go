package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-import/internal/jobs"
)

// ImportCleanupPayload sets how long idempotency keys are retained.
type ImportCleanupPayload struct {
	RetainHours int `json:"retain_hours"`
}

// NewImportCleanupTask builds the cleanup task.
func NewImportCleanupTask(retain time.Duration) (*asynq.Task, error) {
	return newTask(TaskImportCleanup, ImportCleanupPayload{RetainHours: int(retain.Hours())})
}

// SessionPurger drops confirmed wizard sessions.
type SessionPurger interface {
	PurgeCompleted(ctx context.Context) (int, error)
}

// KeyCleaner drops idempotency keys older than a cutoff.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// ImportCleanupJob removes leftovers of confirmed imports.
type ImportCleanupJob struct {
	Sessions SessionPurger
	Keys     KeyCleaner
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewImportCleanupJob wires the cleanup handler. keys may be nil.
func NewImportCleanupJob(sessions SessionPurger, keys KeyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *ImportCleanupJob {
	return &ImportCleanupJob{Sessions: sessions, Keys: keys, Logger: logger, Metrics: metrics}
}

// Handle processes cleanup tasks.
func (j *ImportCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sessions == nil {
		return errors.New("import cleanup: handler not configured")
	}
	var payload ImportCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetainHours <= 0 {
		payload.RetainHours = 24 * 30
	}

	logger := jobLogger(j.Logger, TaskImportCleanup)
	return j.Metrics.Run(TaskImportCleanup, func() (int, error) {
		purged, err := j.Sessions.PurgeCompleted(ctx)
		if err != nil {
			logger.Error("purge import sessions", slog.Any("error", err))
			return 0, err
		}
		if j.Keys != nil {
			if err := j.Keys.Cleanup(ctx, time.Duration(payload.RetainHours)*time.Hour); err != nil {
				logger.Error("cleanup idempotency keys", slog.Any("error", err))
				return purged, err
			}
		}
		logger.Info("completed import cleanup", slog.Int("sessions", purged), slog.Int("retain_hours", payload.RetainHours))
		return purged, nil
	})
}
