// Package messaging wraps the outbound SMS/email provider used by the
// outreach agents. Sending returns a provider-assigned message id or an
// error; rate limiting is surfaced as a typed error so batch steps can back
// off and continue instead of aborting.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrRateLimited is returned when the messaging provider throttles us.
var ErrRateLimited = errors.New("messaging rate limited")

// Channel selects the delivery medium for a message.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Message is one outbound message.
type Message struct {
	Channel Channel `json:"channel"`
	To      string  `json:"to"`
	Subject string  `json:"subject,omitempty"`
	Body    string  `json:"body"`
}

// Sender delivers a message and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// HTTPSender is the HTTP implementation of Sender.
type HTTPSender struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
	logger   *zap.Logger
}

// NewHTTPSender creates a messaging client.
func NewHTTPSender(endpoint, apiKey, from string, logger *zap.Logger) *HTTPSender {
	return &HTTPSender{
		endpoint: endpoint,
		apiKey:   apiKey,
		from:     from,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

// Send delivers one message through the provider.
func (s *HTTPSender) Send(ctx context.Context, msg Message) (string, error) {
	payload := map[string]string{
		"channel": string(msg.Channel),
		"from":    s.from,
		"to":      msg.To,
		"subject": msg.Subject,
		"body":    msg.Body,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("messaging API error %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode send response: %w", err)
	}
	return result.ID, nil
}

// LogSender is a no-op Sender that only logs, for dev mode.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the message and returns a synthetic id.
func (s *LogSender) Send(ctx context.Context, msg Message) (string, error) {
	s.logger.Info("message (dry run)",
		zap.String("channel", string(msg.Channel)),
		zap.String("to", msg.To))
	return "dryrun-" + msg.To, nil
}
