// Package catalog answers which Shopify products belong to a showroom.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/elevenby-design/bridal-showroom-webhooks/internal/showroom"
)

var (
	_ showroom.ProductSource = None{}
	_ showroom.ProductSource = (*S3Manifest)(nil)
)

// None knows no products, so purchases never advance a membership.
type None struct{}

func (None) ProductIDs(context.Context, string) ([]string, error) { return nil, nil }

type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Manifest reads <prefix><showroomID>.json objects shaped like
// {"product_ids": ["123", 456, "gid://shopify/Product/789"]}.
// A missing object means the showroom has no products.
type S3Manifest struct {
	client S3API
	bucket string
	prefix string
}

func NewS3Manifest(client S3API, bucket, prefix string) *S3Manifest {
	return &S3Manifest{client: client, bucket: bucket, prefix: prefix}
}

type manifest struct {
	ProductIDs []json.RawMessage `json:"product_ids"`
}

func (m *S3Manifest) ProductIDs(ctx context.Context, showroomID string) ([]string, error) {
	showroomID = strings.TrimSpace(showroomID)
	if showroomID == "" || strings.ContainsAny(showroomID, "/\\") {
		return nil, nil
	}
	key := m.prefix + showroomID + ".json"

	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", m.bucket, key, err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", m.bucket, key, err)
	}
	var mf manifest
	if err := json.Unmarshal(raw, &mf); err != nil {
		return nil, fmt.Errorf("decode s3://%s/%s: %w", m.bucket, key, err)
	}

	ids := make([]string, 0, len(mf.ProductIDs))
	for _, r := range mf.ProductIDs {
		if id := normalizeID(r); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// normalizeID turns a JSON number, string or product GID into the bare
// numeric id used by order line items.
func normalizeID(r json.RawMessage) string {
	var s string
	if err := json.Unmarshal(r, &s); err != nil {
		s = string(r)
	}
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	if s == "null" {
		return ""
	}
	return s
}
