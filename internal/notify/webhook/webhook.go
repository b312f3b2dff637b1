// Package webhook delivers job failure notifications as JSON POSTs to a
// configured endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/docuflow/automation-api/internal/notify"
)

// Config captures the webhook endpoint behaviour.
type Config struct {
	URL string
	// FieldsExpr is an optional JMESPath expression applied to the canonical
	// payload document; its result becomes the posted body. Empty posts the
	// document unchanged.
	FieldsExpr string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client posts job failure payloads to a webhook endpoint.
type Client struct {
	url        string
	fieldsExpr string
	retryLimit int
	client     *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient validates the config and builds a webhook sink.
func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		return nil, errors.New("webhook url is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid webhook url scheme: %s", u.Scheme)
	}

	expr := strings.TrimSpace(cfg.FieldsExpr)
	if expr != "" {
		if _, err = jmespath.Compile(expr); err != nil {
			return nil, fmt.Errorf("invalid fields expression: %w", err)
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	retries := cfg.RetryLimit
	if retries < 0 {
		retries = 0
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		url:        endpoint,
		fieldsExpr: expr,
		retryLimit: retries,
		client:     hc,
	}, nil
}

// SendJobFailure posts the payload, retrying with linear backoff.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	body, err := c.buildBody(payload)
	if err != nil {
		return err
	}

	attempts := c.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		err = c.post(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < attempts-1 {
			delay := time.Duration(attempt+1) * 200 * time.Millisecond
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return lastErr
}

func (c *Client) buildBody(payload notify.JobFailurePayload) ([]byte, error) {
	occurredAt := payload.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	doc := map[string]any{
		"event":        "job_failure",
		"job_id":       payload.JobID,
		"service_kind": payload.ServiceKind,
		"user_id":      payload.UserID,
		"error":        payload.Error,
		"credits":      payload.Credits,
		"severity":     payload.Severity,
		"occurred_at":  occurredAt.UTC().Format(time.RFC3339),
	}

	if c.fieldsExpr != "" {
		shaped, err := jmespath.Search(c.fieldsExpr, doc)
		if err != nil {
			return nil, fmt.Errorf("evaluate fields expression: %w", err)
		}
		body, err := json.Marshal(shaped)
		if err != nil {
			return nil, fmt.Errorf("encode webhook payload: %w", err)
		}
		return body, nil
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode webhook payload: %w", err)
	}
	return body, nil
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort drain

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
