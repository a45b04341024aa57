package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/programflow/internal/domain"
)

// Compile-time check: Notifier implements domain.Notifier.
var _ domain.Notifier = (*Notifier)(nil)

// NotificationJobArgs carries a notification through River's job queue.
// River serializes this as JSON into its job table, which lives in the
// same SQLite database as the programs: a notification job exists only
// once the transition that produced it has been committed, and a failed
// delivery is retried without ever touching program state.
type NotificationJobArgs struct {
	To        []string `json:"to"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	ProgramID string   `json:"program_id"`
	Event     string   `json:"event"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (NotificationJobArgs) Kind() string { return "notification.requested" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Notifier implements domain.Notifier by enqueuing River jobs.
type Notifier struct {
	client *Client
}

// NewNotifier creates a notifier backed by the given River client.
func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client}
}

// Notify enqueues a notification as an async job in River.
func (n *Notifier) Notify(ctx context.Context, msg domain.Notification) error {
	_, err := n.client.Insert(ctx, NotificationJobArgs{
		To:        msg.To,
		Subject:   msg.Subject,
		Body:      msg.Body,
		ProgramID: msg.ProgramID,
		Event:     msg.Event,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing notification job: %w", err)
	}
	return nil
}
