// Package web fetches upstream pages with retries, a fixed user agent and polite pacing.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"NewsDigest/internal/resilience"
)

const (
	defaultUserAgent = "NewsDigest/1.0"
	defaultTimeout   = 20 * time.Second
	maxBodyBytes     = 16 << 20
)

// StatusError reports a non-200 upstream answer.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %s", e.URL, e.Status)
}

// Options configures Client.
type Options struct {
	UserAgent  string
	Timeout    time.Duration
	Retry      resilience.Policy
	HTTPClient *http.Client
}

// Client performs GET requests shared by every source adapter.
type Client struct {
	http      *http.Client
	userAgent string
	retry     resilience.Policy
	logger    *zap.Logger
}

// NewClient applies defaults for anything left empty in opts.
func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:      opts.HTTPClient,
		userAgent: opts.UserAgent,
		retry:     opts.Retry,
		logger:    logger,
	}
}

// WithHTTPClient returns a copy that sends requests through hc (an OAuth transport, for example).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	clone := *c
	clone.http = hc
	return &clone
}

// Get downloads the body of pageURL. Client errors (4xx) are not retried.
func (c *Client) Get(ctx context.Context, pageURL string) ([]byte, error) {
	var body []byte
	err := resilience.Retry(ctx, c.retry, func(ctx context.Context) error {
		payload, err := c.getOnce(ctx, pageURL)
		if err != nil {
			c.logger.Debug("request failed", zap.String("url", pageURL), zap.Error(err))
			return err
		}
		body = payload
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Document downloads and parses an HTML page.
func (c *Client) Document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, err := c.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// GetJSON downloads pageURL and decodes it into v.
func (c *Client) GetJSON(ctx context.Context, pageURL string, v any) error {
	body, err := c.Get(ctx, pageURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", pageURL, err)
	}
	return nil
}

func (c *Client) getOnce(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{URL: pageURL, StatusCode: resp.StatusCode, Status: resp.Status}
		if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError &&
			resp.StatusCode != http.StatusTooManyRequests {
			return nil, resilience.Permanent(statusErr)
		}
		return nil, statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
