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

// PlannedSupplyWarmupPayload bounds one warm-up run.
type PlannedSupplyWarmupPayload struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

// NewPlannedSupplyWarmupTask builds the warm-up task.
func NewPlannedSupplyWarmupTask(timeout time.Duration) (*asynq.Task, error) {
	return newTask(TaskPlannedSupplyWarmup, PlannedSupplyWarmupPayload{TimeoutSeconds: int(timeout.Seconds())})
}

// SupplyWarmer recomputes every cached planned-supply value.
type SupplyWarmer interface {
	WarmPlannedSupply(ctx context.Context) (int, error)
}

// PlannedSupplyWarmupJob keeps the planned-supply cache hot for replenishment.
type PlannedSupplyWarmupJob struct {
	Supply  SupplyWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPlannedSupplyWarmupJob wires dependencies for the warm-up handler.
func NewPlannedSupplyWarmupJob(supply SupplyWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *PlannedSupplyWarmupJob {
	return &PlannedSupplyWarmupJob{Supply: supply, Logger: logger, Metrics: metrics}
}

// Handle processes warm-up tasks.
func (j *PlannedSupplyWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Supply == nil {
		return errors.New("planned supply warmup: handler not configured")
	}
	var payload PlannedSupplyWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.TimeoutSeconds <= 0 {
		payload.TimeoutSeconds = 300
	}

	logger := jobLogger(j.Logger, TaskPlannedSupplyWarmup)
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(payload.TimeoutSeconds)*time.Second)
	defer cancel()

	return j.Metrics.Run(TaskPlannedSupplyWarmup, func() (int, error) {
		start := time.Now()
		warmed, err := j.Supply.WarmPlannedSupply(runCtx)
		if err != nil {
			logger.Error("warm planned supply", slog.Int("warmed", warmed), slog.Any("error", err))
			return warmed, err
		}
		logger.Info("completed planned supply warmup", slog.Int("keys", warmed), slog.Duration("duration", time.Since(start)))
		return warmed, nil
	})
}
