package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/slack-go/slack"
)

// Failure describes a step that exhausted its retries.
type Failure struct {
	DAGID         string
	TaskID        string
	RunID         string
	ExecutionDate time.Time
	Err           error
}

func (f Failure) String() string {
	return fmt.Sprintf("Task failed\nDAG: %s\nTask: %s\nExecution Date: %s\nError: %v",
		f.DAGID, f.TaskID, f.ExecutionDate.UTC().Format(time.RFC3339), f.Err)
}

// Notifier is told about terminal step failures.
type Notifier interface {
	Notify(ctx context.Context, f Failure) error
}

// LogNotifier writes failures to the log.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, f Failure) error {
	log := n.Log
	if log == nil {
		log = slog.Default()
	}
	log.Error("task failed",
		"dag_id", f.DAGID,
		"task_id", f.TaskID,
		"run_id", f.RunID,
		"execution_date", f.ExecutionDate,
		"error", f.Err)
	return nil
}

// SlackNotifier posts failures to an incoming webhook.
type SlackNotifier struct {
	WebhookURL string
}

func (n SlackNotifier) Notify(ctx context.Context, f Failure) error {
	msg := &slack.WebhookMessage{Text: ":rotating_light: " + f.String()}
	if err := slack.PostWebhookContext(ctx, n.WebhookURL, msg); err != nil {
		return fmt.Errorf("post slack webhook: %w", err)
	}
	return nil
}
