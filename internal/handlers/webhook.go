package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/elevenby-design/bridal-showroom-webhooks/internal/logger"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/showroom"
)

type Lifecycle interface {
	Verify(body []byte, signature string) error
	Process(ctx context.Context, ev showroom.Event) (*showroom.Outcome, error)
}

// WebhookLedger is implemented by *webhookstore.Store; a nil store is valid.
type WebhookLedger interface {
	Claim(ctx context.Context, webhookID, shopDomain, topic string) (bool, error)
	Release(ctx context.Context, webhookID string) error
	RecordLastEvent(ctx context.Context, email, topic, webhookID string, at time.Time) error
}

type webhookResponse struct {
	Success   bool   `json:"success"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
	Topic     string `json:"topic,omitempty"`
}

// NewStatusUpdater applies Shopify lifecycle webhooks. Apart from a bad
// signature it always answers 200 so Shopify does not retry forever; a
// delivery whose transitions failed gives its claim back so a redelivery is
// processed again.
func NewStatusUpdater(b Base, lc Lifecycle, ledger WebhookLedger) Func {
	log := b.Log
	if log == nil {
		log = logger.Nop()
	}
	return b.serve([]string{http.MethodPost}, func(ctx context.Context, req Request) (int, any, error) {
		body, err := rawBody(req)
		if err != nil {
			return 0, nil, err
		}
		signature := header(req, "X-Shopify-Hmac-Sha256")
		if err := lc.Verify(body, signature); err != nil {
			return 0, nil, err
		}

		topic := header(req, "X-Shopify-Topic")
		webhookID := header(req, "X-Shopify-Webhook-Id")
		shop := header(req, "X-Shopify-Shop-Domain")
		ctx = log.WithFields(ctx, map[string]any{"topic": topic, "webhook_id": webhookID})

		claimed := false
		if ledger != nil && webhookID != "" {
			dup, err := ledger.Claim(ctx, webhookID, shop, topic)
			switch {
			case err != nil:
				log.Error(ctx, "webhook claim failed", err)
			case dup:
				log.Info(ctx, "duplicate webhook skipped")
				return http.StatusOK, webhookResponse{Success: true, Duplicate: true, Topic: topic}, nil
			default:
				claimed = true
			}
		}

		out, err := lc.Process(ctx, showroom.Event{
			Topic:     topic,
			Body:      body,
			Signature: signature,
			WebhookID: webhookID,
		})
		if err != nil {
			if claimed {
				release(ctx, log, ledger, webhookID)
			}
			return 0, nil, err
		}

		if len(out.Failed) > 0 && claimed {
			release(ctx, log, ledger, webhookID)
		}
		if ledger != nil && !out.Ignored && out.Email != "" {
			if err := ledger.RecordLastEvent(ctx, out.Email, out.Topic, webhookID, time.Now()); err != nil {
				log.Error(ctx, "record last event failed", err)
			}
		}
		return http.StatusOK, webhookResponse{Success: true, Ignored: out.Ignored, Topic: out.Topic}, nil
	})
}

func release(ctx context.Context, log *logger.Logger, ledger WebhookLedger, webhookID string) {
	if err := ledger.Release(ctx, webhookID); err != nil {
		log.Error(ctx, "webhook claim release failed", err)
	}
}
