package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskPlannedSupplyWarmup recomputes cached planned supply.
	TaskPlannedSupplyWarmup = "shipment:planned-supply-warmup"
	// TaskReceivedReconcile marks fully received shipment lines done.
	TaskReceivedReconcile = "shipment:received-reconcile"
	// TaskImportCleanup purges confirmed wizard sessions and stale idempotency keys.
	TaskImportCleanup = "shipment:import-cleanup"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	return newTask(TaskTypeSendEmail, payload)
}

// Mailer handles TaskTypeSendEmail tasks.
type Mailer struct {
	Logger *slog.Logger
}

// Handle delivers the message. Delivery is logged until an SMTP relay is configured.
func (m Mailer) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.To == "" {
		return asynq.SkipRetry
	}
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "send email",
		slog.String("job", TaskTypeSendEmail),
		slog.String("to", payload.To),
		slog.String("subject", payload.Subject))
	return nil
}

func newTask(taskType string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault)), nil
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
