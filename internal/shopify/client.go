// Package shopify is a small Shopify Admin REST client covering customers,
// customer metafields and webhook subscriptions.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/elevenby-design/bridal-showroom-webhooks/internal/logger"
)

const (
	DefaultAPIVersion = "2024-10"
	defaultTimeout    = 10 * time.Second
)

// APIError is a non-2xx response from the Admin API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("shopify %s %s: http %d: %s", e.Method, e.Path, e.StatusCode, e.Message())
}

// Message flattens Shopify's {"errors": ...} body into one line.
func (e *APIError) Message() string {
	var body struct {
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal([]byte(e.Body), &body); err != nil || len(body.Errors) == 0 {
		return strings.TrimSpace(e.Body)
	}

	var s string
	if err := json.Unmarshal(body.Errors, &s); err == nil {
		return s
	}
	var byField map[string][]string
	if err := json.Unmarshal(body.Errors, &byField); err == nil {
		fields := make([]string, 0, len(byField))
		for f := range byField {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			for _, msg := range byField[f] {
				parts = append(parts, f+" "+msg)
			}
		}
		return strings.Join(parts, "; ")
	}
	return string(body.Errors)
}

type Client struct {
	baseURL     string
	accessToken string
	http        *http.Client
	log         *logger.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithBaseURL replaces https://<shop>/admin/api/<version>. Used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(shopDomain, apiVersion, accessToken string, opts ...Option) *Client {
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	c := &Client{
		baseURL:     fmt.Sprintf("https://%s/admin/api/%s", shopDomain, apiVersion),
		accessToken: accessToken,
		http:        &http.Client{Timeout: defaultTimeout},
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call sends a JSON request and decodes the response into T. A nil body
// sends no payload; 204 and empty bodies decode to the zero value.
func call[T any](ctx context.Context, c *Client, method, path string, body any) (*T, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shopify %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := &APIError{Method: method, Path: stripQuery(path), StatusCode: res.StatusCode, Body: string(raw)}
		c.log.Warn(c.log.WithField(ctx, "status", res.StatusCode), apiErr.Error())
		return nil, apiErr
	}

	var out T
	if len(bytes.TrimSpace(raw)) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return &out, nil
}

func stripQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}
