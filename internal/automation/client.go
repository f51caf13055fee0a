// Package automation talks to operator-configured external automation
// endpoints over HTTP.
package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for automation callback failures.
var (
	ErrUnreachable    = errors.New("automation unreachable")
	ErrUpstreamStatus = errors.New("automation returned error status")
	ErrCallTimeout    = errors.New("automation call timeout")
)

// Runner triggers an automation run for one job.
type Runner interface {
	Trigger(ctx context.Context, callbackURL string, tenderID, jobID uuid.UUID) (*TriggerResponse, error)
}

// TriggerRequest is the body posted to an automation's callback URL.
type TriggerRequest struct {
	TenderID uuid.UUID `json:"tender_id"`
	JobID    uuid.UUID `json:"job_id"`
}

// TriggerResponse is the automation's acknowledgment. Result is set only in
// inline integration mode; automations running out-of-band acknowledge with
// status "accepted" and deliver the result document later through the
// result webhook.
type TriggerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// Succeeded reports whether the automation acknowledged the run.
func (r *TriggerResponse) Succeeded() bool {
	return r.Status == "success" || r.Status == "accepted"
}

// HTTPClient implements Runner over plain HTTP POST.
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient creates a Runner with the given per-call timeout. The
// timeout is minutes-scale: automations are slow and the dispatcher runs in
// the background, so a generous bound beats a spurious failure.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Trigger(ctx context.Context, callbackURL string, tenderID, jobID uuid.UUID) (*TriggerResponse, error) {
	body, err := json.Marshal(TriggerRequest{TenderID: tenderID, JobID: jobID})
	if err != nil {
		return nil, fmt.Errorf("encoding trigger request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamStatus, resp.StatusCode)
	}

	var triggerResp TriggerResponse
	if err := json.NewDecoder(resp.Body).Decode(&triggerResp); err != nil {
		// A 2xx with an unparseable body still counts as an ack; some
		// automations respond with an empty body.
		return &TriggerResponse{Status: "accepted"}, nil
	}
	if triggerResp.Status == "" {
		triggerResp.Status = "accepted"
	}

	return &triggerResp, nil
}

func classifyError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrCallTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrCallTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}
