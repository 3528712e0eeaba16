package pim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"github.com/lychee-technology/pimsync"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client fetches pages of the PIM REST API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	limiter *rate.Limiter
	tokens  *TokenProvider
	retrier *Retrier
	breaker *Breaker
}

// Option customises a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBreaker replaces the breaker built from the configuration
func WithBreaker(b *Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// NewClient creates a client for cfg.BaseURL. tokens must not be nil.
func NewClient(cfg pimsync.PIMConfig, tokens *TokenProvider, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, pimsync.NewConfigurationError("pim.baseUrl", "must be an absolute URL")
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	c := &Client{
		baseURL: base,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		tokens:  tokens,
		retrier: NewRetrier(cfg.RetryLimit),
		breaker: NewBreaker(cfg.BreakerThreshold, cfg.BreakerWindow, cfg.BreakerCooldown),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Resolve returns the absolute URL of target. Absolute URLs are returned verbatim.
func (c *Client) Resolve(target string) string {
	if strings.Contains(target, "://") {
		return target
	}
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}
	return c.baseURL.String() + target
}

type envelope struct {
	Links struct {
		Next *struct {
			Href string `json:"href"`
		} `json:"next"`
	} `json:"_links"`
	Embedded *struct {
		Items []json.RawMessage `json:"items"`
	} `json:"_embedded"`
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

// FetchPage fetches one page. A body without a collection envelope yields a
// single item page. Failures are retried up to the retry limit with no delay.
func (c *Client) FetchPage(ctx context.Context, target string) (pimsync.Page, error) {
	full := c.Resolve(target)
	operation := "GET " + full
	resource := ResourceOf(full)
	if c.breaker.Open(resource) {
		return pimsync.Page{}, pimsync.NewCircuitOpenError(operation).WithDetail("resource", resource)
	}

	var body []byte
	result := c.retrier.Do(ctx, func(ctx context.Context, attempt int) error {
		b, err := c.get(ctx, full)
		if err != nil {
			zap.S().Errorw("PIM request failed, retrying", "url", full, "attempt", attempt, "error", err)
			return err
		}
		body = b
		return nil
	})
	zap.S().Debugw("PIM request finished", "url", full, "attempts", result.Attempts, "duration", result.Duration)
	EmitRetryAttempts(ctx, result.Attempts)

	if result.LastError != nil {
		EmitRequestLatency(ctx, "error", result.Duration.Milliseconds())
		var se *pimsync.SyncError
		if errors.As(result.LastError, &se) {
			return pimsync.Page{}, se
		}
		if result.Stopped {
			return pimsync.Page{}, result.LastError
		}
		c.breaker.Failure(ctx, resource)
		return pimsync.Page{}, pimsync.NewRetryExhaustedError(operation, result.Attempts, result.LastError)
	}
	c.breaker.Success(ctx, resource)
	EmitRequestLatency(ctx, "ok", result.Duration.Milliseconds())

	page, err := decodePage(body)
	if err != nil {
		return pimsync.Page{}, pimsync.NewSyncError(pimsync.ErrorTypeTransientRemote, pimsync.ErrCodeInvalidResponse, "response is not valid JSON").
			WithCause(err).
			WithDetail("url", full)
	}
	EmitPageItems(ctx, len(page.Items))
	return page, nil
}

func decodePage(body []byte) (pimsync.Page, error) {
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return pimsync.Page{}, err
		}
		return pimsync.Page{Items: items}, nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return pimsync.Page{}, err
	}
	page := pimsync.Page{}
	if env.Links.Next != nil {
		page.NextURL = env.Links.Next.Href
	}
	if env.Embedded == nil {
		page.Items = []json.RawMessage{json.RawMessage(body)}
		page.NextURL = ""
		return page, nil
	}
	page.Items = env.Embedded.Items
	return page, nil
}

func (c *Client) get(ctx context.Context, full string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, Stop(err)
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, Stop(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, Stop(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{status: resp.StatusCode, body: truncate(body, 200)}
	}
	return body, nil
}

// FetchAll yields pages starting at target until the last page. pageLimit > 0
// stops after that many pages. The next page is requested only after the
// consumer has handled the current one.
func (c *Client) FetchAll(ctx context.Context, target string, pageLimit int) iter.Seq2[pimsync.Page, error] {
	return func(yield func(pimsync.Page, error) bool) {
		next := target
		pages := 0
		for next != "" {
			page, err := c.FetchPage(ctx, next)
			if err != nil {
				yield(pimsync.Page{}, err)
				return
			}
			pages++
			if !yield(page, nil) {
				return
			}
			if pageLimit > 0 && pages >= pageLimit {
				zap.S().Infow("page limit reached, stopping pagination", "url", target, "pages", pages)
				return
			}
			next = page.NextURL
		}
	}
}

// Get fetches a single resource into out.
func (c *Client) Get(ctx context.Context, target string, out any) error {
	page, err := c.FetchPage(ctx, target)
	if err != nil {
		return err
	}
	if len(page.Items) == 0 {
		return pimsync.NewSyncError(pimsync.ErrorTypeTransientRemote, pimsync.ErrCodeInvalidResponse, "empty response").
			WithDetail("url", c.Resolve(target))
	}
	if err := json.Unmarshal(page.Items[0], out); err != nil {
		return pimsync.NewSyncError(pimsync.ErrorTypeTransientRemote, pimsync.ErrCodeInvalidResponse, "unexpected resource shape").
			WithCause(err).
			WithDetail("url", c.Resolve(target))
	}
	return nil
}
