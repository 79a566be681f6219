package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-import/internal/shipment"
)

// Enqueuer submits tasks.
type Enqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// GroupNotifier mails the configured recipient about receipt groups that
// were skipped or failed during an import.
type GroupNotifier struct {
	Queue Enqueuer
	To    string
}

// GroupsNotCreated enqueues one message listing groups. It does nothing
// without a recipient.
func (n GroupNotifier) GroupsNotCreated(ctx context.Context, sessionID string, groups []shipment.GroupResult) error {
	if n.Queue == nil || n.To == "" || len(groups) == 0 {
		return nil
	}
	var body strings.Builder
	fmt.Fprintf(&body, "Import %s left %d receipt group(s) without a receipt:\n", sessionID, len(groups))
	for _, g := range groups {
		date := "today"
		if g.Date != nil {
			date = g.Date.Format("2006-01-02")
		}
		fmt.Fprintf(&body, "- vendor %d, date %s, lines %v: %s", g.VendorID, date, g.LineIDs, g.Status)
		if g.Reason != "" {
			fmt.Fprintf(&body, " (%s)", g.Reason)
		}
		body.WriteString("\n")
	}
	_, err := n.Queue.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      n.To,
		Subject: fmt.Sprintf("Import %s: %d receipt group(s) not created", sessionID, len(groups)),
		Body:    body.String(),
	})
	return err
}
