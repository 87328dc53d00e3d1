// Package webhookstore keeps webhook delivery bookkeeping in DynamoDB: a
// claim per webhook id so redeliveries are processed once, and the last
// event seen per customer.
package webhookstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const DefaultClaimTTL = 7 * 24 * time.Hour

type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

type claimItem struct {
	PK        string `dynamodbav:"PK"`
	Shop      string `dynamodbav:"Shop"`
	Topic     string `dynamodbav:"Topic"`
	CreatedAt string `dynamodbav:"CreatedAt"`
	ExpiresAt int64  `dynamodbav:"ExpiresAt"`
}

type Store struct {
	ddb         DDBClient
	dedupeTable string
	eventsTable string
	ttl         time.Duration
	now         func() time.Time
}

// New returns a store. An empty table name turns that half off.
func New(ddb DDBClient, dedupeTable, eventsTable string) *Store {
	return &Store{
		ddb:         ddb,
		dedupeTable: strings.TrimSpace(dedupeTable),
		eventsTable: strings.TrimSpace(eventsTable),
		ttl:         DefaultClaimTTL,
		now:         time.Now,
	}
}

func claimKey(webhookID string) string {
	return fmt.Sprintf("WH#%s", webhookID)
}

// Claim returns (isDuplicate, error). If duplicate, caller should exit early.
func (s *Store) Claim(ctx context.Context, webhookID, shopDomain, topic string) (bool, error) {
	webhookID = strings.TrimSpace(webhookID)
	if s == nil || s.ddb == nil || s.dedupeTable == "" || webhookID == "" {
		return false, nil
	}

	now := s.now().UTC()
	item, err := attributevalue.MarshalMap(claimItem{
		PK:        claimKey(webhookID),
		Shop:      shopDomain,
		Topic:     topic,
		CreatedAt: now.Format(time.RFC3339),
		ExpiresAt: now.Add(s.ttl).Unix(),
	})
	if err != nil {
		return false, fmt.Errorf("marshal webhook claim: %w", err)
	}

	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.dedupeTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// Release drops a claim so a redelivery of the same webhook is processed again.
func (s *Store) Release(ctx context.Context, webhookID string) error {
	webhookID = strings.TrimSpace(webhookID)
	if s == nil || s.ddb == nil || s.dedupeTable == "" || webhookID == "" {
		return nil
	}
	_, err := s.ddb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.dedupeTable),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: claimKey(webhookID)},
		},
	})
	return err
}

// RecordLastEvent updates the per-customer "last event received" fields.
// PK = CUSTOMER#<email>
func (s *Store) RecordLastEvent(ctx context.Context, email, topic, webhookID string, at time.Time) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if s == nil || s.ddb == nil || s.eventsTable == "" || email == "" {
		return nil
	}

	// LastEventWebhookId keeps its previous value when the id is unknown.
	updateExpr := "SET LastEventAt=:a, LastEventTopic=:t"
	exprVals := map[string]types.AttributeValue{
		":a": &types.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339)},
		":t": &types.AttributeValueMemberS{Value: topic},
	}
	if strings.TrimSpace(webhookID) != "" {
		updateExpr += ", LastEventWebhookId=:w"
		exprVals[":w"] = &types.AttributeValueMemberS{Value: webhookID}
	}

	_, err := s.ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.eventsTable),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "CUSTOMER#" + email},
		},
		UpdateExpression:          aws.String(updateExpr),
		ExpressionAttributeValues: exprVals,
	})
	return err
}
