package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-import/internal/jobs"
)

// NewReceivedReconcileTask builds the reconcile task.
func NewReceivedReconcileTask() (*asynq.Task, error) {
	return newTask(TaskReceivedReconcile, struct{}{})
}

// ReceivedReconciler marks lines whose received quantity covers the order.
type ReceivedReconciler interface {
	ReconcileReceived(ctx context.Context) (int, error)
}

// ReceivedReconcileJob catches lines that completed without a move event,
// such as receipts validated before the line existed.
type ReceivedReconcileJob struct {
	Lines   ReceivedReconciler
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReceivedReconcileJob wires the reconcile handler.
func NewReceivedReconcileJob(lines ReceivedReconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReceivedReconcileJob {
	return &ReceivedReconcileJob{Lines: lines, Logger: logger, Metrics: metrics}
}

// Handle processes reconcile tasks.
func (j *ReceivedReconcileJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Lines == nil {
		return errors.New("received reconcile: handler not configured")
	}
	logger := jobLogger(j.Logger, TaskReceivedReconcile)
	return j.Metrics.Run(TaskReceivedReconcile, func() (int, error) {
		marked, err := j.Lines.ReconcileReceived(ctx)
		if err != nil {
			logger.Error("reconcile received quantities", slog.Int("marked", marked), slog.Any("error", err))
			return marked, err
		}
		logger.Info("completed received reconcile", slog.Int("lines_done", marked))
		return marked, nil
	})
}
