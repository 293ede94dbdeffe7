package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nidhogg/leadflow/internal/messaging"
	"github.com/nidhogg/leadflow/internal/workflow"
	"go.uber.org/zap"
)

// sampleCap bounds the per-item results embedded in a batch step's output.
const sampleCap = 10

// OutreachAction sends a templated message to each qualified lead. One
// instance per channel (email, sms); the batch loop is shared. Items are
// processed independently: one recipient's failure never aborts the rest.
type OutreachAction struct {
	kind    workflow.AgentKind
	channel messaging.Channel
	sender  messaging.Sender
	backoff time.Duration
	logger  *zap.Logger
}

// NewOutreachEmailAction creates the email outreach executor action.
func NewOutreachEmailAction(sender messaging.Sender, backoff time.Duration, logger *zap.Logger) *OutreachAction {
	return newOutreach(workflow.KindOutreachEmail, messaging.ChannelEmail, sender, backoff, logger)
}

// NewOutreachSMSAction creates the SMS outreach executor action.
func NewOutreachSMSAction(sender messaging.Sender, backoff time.Duration, logger *zap.Logger) *OutreachAction {
	return newOutreach(workflow.KindOutreachSMS, messaging.ChannelSMS, sender, backoff, logger)
}

func newOutreach(kind workflow.AgentKind, channel messaging.Channel, sender messaging.Sender, backoff time.Duration, logger *zap.Logger) *OutreachAction {
	if backoff == 0 {
		backoff = 2 * time.Second
	}
	return &OutreachAction{kind: kind, channel: channel, sender: sender, backoff: backoff, logger: logger}
}

func (a *OutreachAction) Kind() workflow.AgentKind { return a.kind }

// Run sends to every lead from qualifier_results (falling back to raw
// scout_results when no qualifier ran). The step output is a BatchSummary:
// totals plus a capped sample, so payload size stays bounded.
func (a *OutreachAction) Run(ctx context.Context, in ActionInput) (*ActionResult, error) {
	leads, err := a.targetLeads(in.Memory)
	if err != nil {
		return nil, err
	}

	template := stringParam(in.Params, "template", "Hi {name}, we help businesses like yours grow. Interested?")
	subject := stringParam(in.Params, "subject", "Quick question")

	summary := workflow.BatchSummary{Attempted: len(leads)}
	for _, lead := range leads {
		item := a.sendOne(ctx, lead, subject, template)
		if item.Status == "sent" {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		if len(summary.Sample) < sampleCap {
			summary.Sample = append(summary.Sample, item)
		}
	}

	a.logger.Info("outreach batch done",
		zap.String("channel", string(a.channel)),
		zap.Int("attempted", summary.Attempted),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed))

	return &ActionResult{
		Output: map[string]any{
			"attempted": summary.Attempted,
			"succeeded": summary.Succeeded,
			"failed":    summary.Failed,
			"sample":    summary.Sample,
		},
		MemoryPatch: workflow.Memory{workflow.KeyOutreachResults: summary},
	}, nil
}

// sendOne delivers to a single lead. Rate limiting gets one backoff and
// retry; any remaining error is recorded on the item only.
func (a *OutreachAction) sendOne(ctx context.Context, lead workflow.Lead, subject, template string) workflow.BatchItem {
	recipient := lead.Email
	if a.channel == messaging.ChannelSMS {
		recipient = lead.Phone
	}
	item := workflow.BatchItem{Recipient: recipient}
	if recipient == "" {
		item.Status = "failed"
		item.Error = "no contact address for channel"
		return item
	}

	msg := messaging.Message{
		Channel: a.channel,
		To:      recipient,
		Subject: subject,
		Body:    renderTemplate(template, lead),
	}

	id, err := a.sender.Send(ctx, msg)
	if errors.Is(err, messaging.ErrRateLimited) {
		a.logger.Warn("messaging rate limited, backing off", zap.Duration("backoff", a.backoff))
		select {
		case <-time.After(a.backoff):
		case <-ctx.Done():
			item.Status = "failed"
			item.Error = ctx.Err().Error()
			return item
		}
		id, err = a.sender.Send(ctx, msg)
	}
	if err != nil {
		item.Status = "failed"
		item.Error = err.Error()
		return item
	}
	item.Status = "sent"
	item.MessageID = id
	return item
}

func (a *OutreachAction) targetLeads(mem workflow.Memory) ([]workflow.Lead, error) {
	if mem.Has(workflow.KeyQualifierResults) {
		var q workflow.QualifierResults
		if err := mem.Decode(workflow.KeyQualifierResults, &q); err != nil {
			return nil, fmt.Errorf("decode qualifier results: %w", err)
		}
		return q.Leads, nil
	}
	if mem.Has(workflow.KeyScoutResults) {
		var s workflow.ScoutResults
		if err := mem.Decode(workflow.KeyScoutResults, &s); err != nil {
			return nil, fmt.Errorf("decode scout results: %w", err)
		}
		return s.Leads, nil
	}
	return nil, fmt.Errorf("outreach needs scout or qualifier results in memory")
}

// renderTemplate fills {name} and {company} placeholders.
func renderTemplate(template string, lead workflow.Lead) string {
	out := strings.ReplaceAll(template, "{name}", lead.Name)
	out = strings.ReplaceAll(out, "{company}", lead.Company)
	return out
}
