// Package notify reports workflow terminal states to an external channel.
// Notification failures are logged and swallowed; they never affect the run.
package notify

import (
	"context"
	"fmt"

	"github.com/nidhogg/leadflow/internal/workflow"
	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// Noop is the notifier used when no channel is configured.
type Noop struct{}

func (Noop) WorkflowCompleted(context.Context, *workflow.Workflow)      {}
func (Noop) WorkflowFailed(context.Context, *workflow.Workflow, string) {}

// Slack posts workflow outcomes to a Slack channel.
type Slack struct {
	client  *slack.Client
	channel string
	logger  *zap.Logger
}

// NewSlack creates a Slack notifier.
func NewSlack(token, channel string, logger *zap.Logger) *Slack {
	return &Slack{client: slack.New(token), channel: channel, logger: logger}
}

// WorkflowCompleted posts a completion message.
func (s *Slack) WorkflowCompleted(ctx context.Context, w *workflow.Workflow) {
	text := fmt.Sprintf(":white_check_mark: Workflow `%s` completed (%d steps): %s",
		w.ID, len(w.Plan), w.Goal)
	s.post(ctx, text)
}

// WorkflowFailed posts a failure message.
func (s *Slack) WorkflowFailed(ctx context.Context, w *workflow.Workflow, reason string) {
	text := fmt.Sprintf(":x: Workflow `%s` failed: %s — %s", w.ID, w.Goal, reason)
	s.post(ctx, text)
}

func (s *Slack) post(ctx context.Context, text string) {
	_, _, err := s.client.PostMessageContext(ctx, s.channel,
		slack.MsgOptionText(text, false))
	if err != nil {
		s.logger.Warn("slack notification failed", zap.Error(err))
	}
}
