// Package notify publishes showroom membership transitions to an SNS topic.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/elevenby-design/bridal-showroom-webhooks/internal/showroom"
)

type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

var _ showroom.Notifier = (*Publisher)(nil)

type Publisher struct {
	client   SNSClient
	topicArn string
}

func NewPublisher(client SNSClient, topicArn string) *Publisher {
	return &Publisher{client: client, topicArn: strings.TrimSpace(topicArn)}
}

// Notify publishes one transition. Email subscribers get the plain text
// body; the attributes allow filtered subscriptions per status.
func (p *Publisher) Notify(ctx context.Context, n showroom.Notification) error {
	if p == nil || p.client == nil || p.topicArn == "" {
		return nil
	}
	subject, message := buildMessage(n)
	_, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"status": {DataType: aws.String("String"), StringValue: aws.String(string(n.To))},
			"topic":  {DataType: aws.String("String"), StringValue: aws.String(n.Topic)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish transition: %w", err)
	}
	return nil
}

func buildMessage(n showroom.Notification) (subject string, body string) {
	// SNS subjects are capped at 100 characters.
	subject = fmt.Sprintf("Bridal showroom: %s %s", n.Email, n.To)
	if len(subject) > 100 {
		subject = subject[:100]
	}

	lines := []string{
		"Bridal Showroom Membership Update",
		"",
		fmt.Sprintf("Email: %s", n.Email),
		fmt.Sprintf("Showroom: %s", n.ShowroomID),
		fmt.Sprintf("Status: %s -> %s", n.From, n.To),
	}
	if n.CustomerID != 0 {
		lines = append(lines, fmt.Sprintf("CustomerId: %d", n.CustomerID))
	}
	if n.OrderID != "" {
		lines = append(lines, fmt.Sprintf("OrderId: %s", n.OrderID))
	}
	if n.Topic != "" {
		lines = append(lines, fmt.Sprintf("Webhook: %s", n.Topic))
	}
	at := n.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	lines = append(lines, "", fmt.Sprintf("OccurredAt: %s", at.UTC().Format(time.RFC3339)))
	return subject, strings.Join(lines, "\n")
}
