// Package homeassistant resolves dynamic field expressions by rendering
// them through the Home Assistant template API.
package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-display-go/internal/core/resolver"
)

// Config connects the client to one Home Assistant instance.
type Config struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

// Client renders template expressions against the HA REST API. It
// implements resolver.Resolver.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logrus.Logger

	requestTimeout time.Duration
	maxRetries     int
	retryDelay     time.Duration
	maxRetryDelay  time.Duration
}

var _ resolver.Resolver = (*Client)(nil)

// NewClient creates a template client.
func NewClient(cfg Config, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:         logger,
		requestTimeout: 30 * time.Second,
		maxRetries:     3,
		retryDelay:     time.Second,
		maxRetryDelay:  10 * time.Second,
	}
}

// Resolve renders one expression. Scope variables are inlined into the
// template context via a variable preamble, so page variables behave like
// template locals. Bare expressions are wrapped in {{ }} first.
func (c *Client) Resolve(ctx context.Context, expr string, scope resolver.Scope) (interface{}, error) {
	tpl := expr
	if !strings.Contains(tpl, "{{") && !strings.Contains(tpl, "{%") {
		tpl = "{{ " + tpl + " }}"
	}
	if len(scope) > 0 {
		var sb strings.Builder
		for name, value := range scope {
			enc, err := json.Marshal(value)
			if err != nil {
				return nil, &resolver.ResolveError{Expr: expr, Err: fmt.Errorf("scope variable %q: %w", name, err)}
			}
			fmt.Fprintf(&sb, "{%% set %s = %s %%}", name, enc)
		}
		tpl = sb.String() + tpl
	}

	rendered, err := c.renderTemplate(ctx, tpl)
	if err != nil {
		return nil, &resolver.ResolveError{Expr: expr, Err: err}
	}
	return parseRendered(rendered), nil
}

// renderTemplate POSTs to /api/template with retry and exponential backoff.
func (c *Client) renderTemplate(ctx context.Context, tpl string) (string, error) {
	url := c.baseURL + "/api/template"
	payload, err := json.Marshal(map[string]string{"template": tpl})
	if err != nil {
		return "", fmt.Errorf("failed to marshal template request: %w", err)
	}

	var lastErr error
	retryDelay := c.retryDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryDelay):
			}
			retryDelay *= 2
			if retryDelay > c.maxRetryDelay {
				retryDelay = c.maxRetryDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
		if err != nil {
			return "", fmt.Errorf("failed to create template request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")

		c.logger.WithFields(logrus.Fields{
			"attempt": attempt + 1,
		}).Debug("Rendering template via Home Assistant")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("template request failed: %w", err)
			c.logger.WithError(err).WithField("attempt", attempt+1).Warn("Template request failed, will retry")
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("failed to read template response: %w", readErr)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return string(body), nil
		case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
			// Template or auth errors will not improve on retry.
			return "", fmt.Errorf("template rejected (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
		default:
			lastErr = fmt.Errorf("template request returned status %d", resp.StatusCode)
			c.logger.WithFields(logrus.Fields{
				"status":  resp.StatusCode,
				"attempt": attempt + 1,
			}).Warn("Template request failed, will retry")
		}
	}
	return "", lastErr
}

// parseRendered maps HA's plain-text template output to a typed value:
// JSON-shaped output becomes the corresponding Go value, everything else
// stays a string.
func parseRendered(s string) interface{} {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ""
	}

	var v interface{}
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		switch v.(type) {
		case float64, bool, []interface{}, map[string]interface{}, nil:
			return v
		}
	}
	switch trimmed {
	case "True":
		return true
	case "False":
		return false
	case "None":
		return nil
	}
	return trimmed
}
