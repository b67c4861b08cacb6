// Package webhook sends user messages to the remote agent endpoint and turns
// whatever comes back into plain reply text.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pascalm94/Artips/internal/textnorm"
)

// EmptyReplyNotice is returned when the webhook answers 2xx with no body.
// An empty reply is a soft case, not a failure.
const EmptyReplyNotice = "I received an empty response from the agent. Please try again."

// NetworkError reports a connect/transport failure before any HTTP status
// was received.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("webhook: network failure: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError reports a non-2xx response from the webhook.
type HTTPError struct {
	Status int
}

func (e *HTTPError) Error() string { return fmt.Sprintf("webhook: http status %d", e.Status) }

type messageRequest struct {
	Message string `json:"message"`
}

// Client issues single-attempt JSON POSTs to the agent webhook. It imposes no
// timeout of its own; callers bound the request through the context.
type Client struct {
	HTTPClient *http.Client
	Endpoint   string
}

func New(endpoint string) *Client {
	return &Client{
		HTTPClient: &http.Client{},
		Endpoint:   endpoint,
	}
}

// SendMessage posts the user text and returns the normalized reply. There is
// no retry; the call either yields reply text or one of the typed errors.
func (c *Client) SendMessage(ctx context.Context, text string) (string, error) {
	if c.Endpoint == "" {
		return "", fmt.Errorf("webhook: endpoint not configured")
	}

	body, _ := json.Marshal(messageRequest{Message: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &NetworkError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &HTTPError{Status: resp.StatusCode}
	}
	if strings.TrimSpace(string(raw)) == "" {
		return EmptyReplyNotice, nil
	}
	return textnorm.NormalizeResponseText(string(raw)), nil
}
