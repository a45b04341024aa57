package river

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
)

// Sender delivers one notification to its recipients. Implementations
// plug in the actual medium (SMTP relay, chat webhook); the default in
// cmd only logs.
type Sender interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// LogSender is a Sender that writes notifications to the structured
// log. Useful for development and as a safe default.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, to []string, subject, _ string) error {
	slog.InfoContext(ctx, "notification delivered",
		"to", to,
		"subject", subject,
	)
	return nil
}

// NotificationWorker processes notification jobs from the River queue
// and hands them to the configured Sender. A Send error makes River
// retry the job; program state is never involved.
type NotificationWorker struct {
	river.WorkerDefaults[NotificationJobArgs]

	sender Sender
}

// Work processes a single notification job.
func (w *NotificationWorker) Work(ctx context.Context, job *river.Job[NotificationJobArgs]) error {
	slog.InfoContext(ctx, "processing notification",
		"event", job.Args.Event,
		"program_id", job.Args.ProgramID,
		"recipients", len(job.Args.To),
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return w.sender.Send(ctx, job.Args.To, job.Args.Subject, job.Args.Body)
}
