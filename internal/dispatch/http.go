package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nidhogg/leadflow/internal/workflow"
	"go.uber.org/zap"
)

// HTTPDispatcher POSTs chain messages to the executor endpoint without
// waiting for the step to run. Delivery failures are logged by the caller
// and leave the workflow stalled, never corrupted.
type HTTPDispatcher struct {
	baseURL       string
	internalToken string
	client        *http.Client
	logger        *zap.Logger
}

// NewHTTPDispatcher creates a dispatcher targeting baseURL (the service's
// own address in a single-node deployment).
func NewHTTPDispatcher(baseURL, internalToken string, logger *zap.Logger) *HTTPDispatcher {
	return &HTTPDispatcher{
		baseURL:       baseURL,
		internalToken: internalToken,
		client:        &http.Client{Timeout: 10 * time.Second},
		logger:        logger,
	}
}

// Dispatch sends the chain call in a background goroutine and returns
// immediately. The POST timeout bounds only connection/send, not step
// execution, which happens on the receiving side.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, msg *workflow.ChainMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal chain message: %w", err)
	}
	url := fmt.Sprintf("%s/api/agents/%s", d.baseURL, msg.Agent)

	go func() {
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			d.logger.Error("chain request build failed", zap.String("url", url), zap.Error(err))
			return
		}
		req.Header.Set("Content-Type", "application/json")
		if d.internalToken != "" {
			req.Header.Set("X-Internal-Token", d.internalToken)
		}

		resp, err := d.client.Do(req)
		if err != nil {
			d.logger.Error("chain delivery failed", zap.String("step", msg.StepID), zap.Error(err))
			return
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		if resp.StatusCode != http.StatusOK {
			d.logger.Warn("chain call returned non-200",
				zap.String("step", msg.StepID), zap.Int("status", resp.StatusCode))
		}
	}()
	return nil
}
