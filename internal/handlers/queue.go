package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/elevenby-design/bridal-showroom-webhooks/internal/logger"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/showroom"
)

type LifecycleApplier interface {
	Apply(ctx context.Context, ev showroom.Event) *showroom.Outcome
}

// ebEvent is a Shopify webhook as the EventBridge partner source delivers it.
type ebEvent struct {
	DetailType string   `json:"detail-type"`
	Source     string   `json:"source"`
	Time       string   `json:"time"`
	Detail     ebDetail `json:"detail"`
}

type ebDetail struct {
	Payload  json.RawMessage   `json:"payload"`
	Metadata map[string]string `json:"metadata"`
}

func (d ebDetail) meta(key string) string {
	for k, v := range d.Metadata {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// NewLifecycleWorker consumes EventBridge webhook deliveries from SQS. A
// message whose transitions failed is reported back so SQS redelivers it
// (and eventually dead-letters it); the rest of the batch is unaffected.
func NewLifecycleWorker(log *logger.Logger, lc LifecycleApplier, ledger WebhookLedger) func(context.Context, events.SQSEvent) (events.SQSEventResponse, error) {
	if log == nil {
		log = logger.Nop()
	}
	return func(ctx context.Context, batch events.SQSEvent) (events.SQSEventResponse, error) {
		failures := make([]events.SQSBatchItemFailure, 0)
		for _, rec := range batch.Records {
			msgCtx := log.WithField(ctx, "message_id", rec.MessageId)
			if err := applyMessage(msgCtx, log, lc, ledger, rec.Body); err != nil {
				log.Error(msgCtx, "lifecycle message failed", err)
				failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
			}
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, nil
	}
}

func applyMessage(ctx context.Context, log *logger.Logger, lc LifecycleApplier, ledger WebhookLedger, body string) error {
	var ev ebEvent
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return fmt.Errorf("unmarshal eventbridge event: %w", err)
	}
	topic := ev.Detail.meta("X-Shopify-Topic")
	if topic == "" {
		topic = ev.DetailType
	}
	webhookID := ev.Detail.meta("X-Shopify-Webhook-Id")
	shop := ev.Detail.meta("X-Shopify-Shop-Domain")
	if topic == "" || len(ev.Detail.Payload) == 0 {
		return fmt.Errorf("event has no topic or payload")
	}
	ctx = log.WithFields(ctx, map[string]any{"topic": topic, "webhook_id": webhookID})

	claimed := false
	if ledger != nil && webhookID != "" {
		dup, err := ledger.Claim(ctx, webhookID, shop, topic)
		switch {
		case err != nil:
			log.Error(ctx, "webhook claim failed", err)
		case dup:
			log.Info(ctx, "duplicate webhook skipped")
			return nil
		default:
			claimed = true
		}
	}

	out := lc.Apply(ctx, showroom.Event{Topic: topic, Body: ev.Detail.Payload, WebhookID: webhookID})
	if len(out.Failed) > 0 {
		if claimed {
			release(ctx, log, ledger, webhookID)
		}
		return fmt.Errorf("%s: %s", topic, strings.Join(out.Failed, "; "))
	}
	if ledger != nil && !out.Ignored && out.Email != "" {
		if err := ledger.RecordLastEvent(ctx, out.Email, out.Topic, webhookID, time.Now()); err != nil {
			log.Error(ctx, "record last event failed", err)
		}
	}
	return nil
}
