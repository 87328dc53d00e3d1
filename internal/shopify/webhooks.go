package shopify

import (
	"context"
	"net/http"
	"strings"
)

// LifecycleTopics are the webhooks the status updater consumes.
var LifecycleTopics = []string{
	"customers/create",
	"customers/update",
	"orders/create",
}

type webhookCreateReq struct {
	Webhook struct {
		Address string `json:"address"`
		Topic   string `json:"topic"`
		Format  string `json:"format"`
	} `json:"webhook"`
}

type Webhook struct {
	ID      int64  `json:"id"`
	Address string `json:"address"`
	Topic   string `json:"topic"`
	Format  string `json:"format"`
}

type webhookEnvelope struct {
	Webhook Webhook `json:"webhook"`
}

type webhooksEnvelope struct {
	Webhooks []Webhook `json:"webhooks"`
}

// CreateWebhook subscribes address to topic.
func (c *Client) CreateWebhook(ctx context.Context, topic, address string) (*Webhook, error) {
	var payload webhookCreateReq
	payload.Webhook.Address = address
	payload.Webhook.Topic = topic
	payload.Webhook.Format = "json"

	out, err := call[webhookEnvelope](ctx, c, http.MethodPost, "/webhooks.json", payload)
	if err != nil {
		return nil, err
	}
	return &out.Webhook, nil
}

func (c *Client) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	out, err := call[webhooksEnvelope](ctx, c, http.MethodGet, "/webhooks.json?limit=250", nil)
	if err != nil {
		return nil, err
	}
	return out.Webhooks, nil
}

// SubscribeTopics subscribes address to every topic that is not already
// delivered there. Topics that already exist count as created.
func (c *Client) SubscribeTopics(ctx context.Context, address string, topics []string) (created []string, failed []map[string]string) {
	existing := map[string]bool{}
	if hooks, err := c.ListWebhooks(ctx); err == nil {
		for _, h := range hooks {
			if strings.EqualFold(h.Address, address) {
				existing[h.Topic] = true
			}
		}
	}

	for _, t := range topics {
		if existing[t] {
			created = append(created, t)
			continue
		}
		if _, err := c.CreateWebhook(ctx, t, address); err != nil {
			failed = append(failed, map[string]string{"topic": t, "error": err.Error()})
			continue
		}
		created = append(created, t)
	}
	return created, failed
}
