// Package klaviyo sends showroom events to the Klaviyo Events API.
package klaviyo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elevenby-design/bridal-showroom-webhooks/internal/logger"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/showroom"
)

const (
	DefaultBaseURL  = "https://a.klaviyo.com"
	DefaultRevision = "2024-10-15"
)

var _ showroom.Marketer = (*Client)(nil)

type Client struct {
	apiKey   string
	baseURL  string
	revision string
	http     *http.Client
	log      *logger.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:   apiKey,
		baseURL:  DefaultBaseURL,
		revision: DefaultRevision,
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type eventRequest struct {
	Data eventData `json:"data"`
}

type eventData struct {
	Type       string          `json:"type"`
	Attributes eventAttributes `json:"attributes"`
}

type eventAttributes struct {
	Properties map[string]any `json:"properties"`
	Time       string         `json:"time,omitempty"`
	UniqueID   string         `json:"unique_id,omitempty"`
	Metric     relationship   `json:"metric"`
	Profile    relationship   `json:"profile"`
}

type relationship struct {
	Data resource `json:"data"`
}

type resource struct {
	Type       string         `json:"type"`
	Attributes map[string]any `json:"attributes"`
}

// Track records ev against the profile identified by its email.
func (c *Client) Track(ctx context.Context, ev showroom.MarketingEvent) error {
	if strings.TrimSpace(c.apiKey) == "" {
		return fmt.Errorf("klaviyo api key not configured")
	}
	if strings.TrimSpace(ev.Email) == "" || strings.TrimSpace(ev.Metric) == "" {
		return fmt.Errorf("klaviyo event needs an email and a metric")
	}

	profile := map[string]any{"email": ev.Email}
	if ev.FirstName != "" {
		profile["first_name"] = ev.FirstName
	}
	if ev.LastName != "" {
		profile["last_name"] = ev.LastName
	}
	if len(ev.ProfileProperties) > 0 {
		profile["properties"] = ev.ProfileProperties
	}
	props := ev.Properties
	if props == nil {
		props = map[string]any{}
	}

	payload := eventRequest{Data: eventData{
		Type: "event",
		Attributes: eventAttributes{
			Properties: props,
			UniqueID:   ev.UniqueID,
			Metric:     relationship{Data: resource{Type: "metric", Attributes: map[string]any{"name": ev.Metric}}},
			Profile:    relationship{Data: resource{Type: "profile", Attributes: profile}},
		},
	}}
	if !ev.Time.IsZero() {
		payload.Data.Attributes.Time = ev.Time.UTC().Format(time.RFC3339)
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode klaviyo event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/events/", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Klaviyo-API-Key "+c.apiKey)
	req.Header.Set("revision", c.revision)
	req.Header.Set("Content-Type", "application/vnd.api+json")
	req.Header.Set("Accept", "application/vnd.api+json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("klaviyo create event: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("klaviyo create event failed: http %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}
	c.log.Debug(c.log.WithField(ctx, "metric", ev.Metric), "klaviyo event accepted")
	return nil
}
