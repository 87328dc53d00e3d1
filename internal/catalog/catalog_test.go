package catalog

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string]string
	err     error
	keys    []string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Key)
	f.keys = append(f.keys, key)
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestNoneIsEmpty(t *testing.T) {
	ids, err := None{}.ProductIDs(context.Background(), "sr-1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestS3ManifestNormalizesIDs(t *testing.T) {
	client := &fakeS3{objects: map[string]string{
		"showrooms/sr-1.json": `{"product_ids":["111", 222, "gid://shopify/Product/333", null]}`,
	}}
	m := NewS3Manifest(client, "bucket", "showrooms/")

	ids, err := m.ProductIDs(context.Background(), "sr-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"111", "222", "333"}, ids)
	assert.Equal(t, []string{"showrooms/sr-1.json"}, client.keys)
}

func TestS3ManifestMissingObject(t *testing.T) {
	m := NewS3Manifest(&fakeS3{}, "bucket", "")
	ids, err := m.ProductIDs(context.Background(), "sr-2")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestS3ManifestRejectsPathLikeIDs(t *testing.T) {
	client := &fakeS3{}
	ids, err := NewS3Manifest(client, "bucket", "").ProductIDs(context.Background(), "../secret")
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, client.keys)
}

func TestS3ManifestErrors(t *testing.T) {
	_, err := NewS3Manifest(&fakeS3{err: errors.New("AccessDenied")}, "bucket", "").ProductIDs(context.Background(), "sr-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://bucket/sr-1.json")

	bad := &fakeS3{objects: map[string]string{"sr-1.json": "not json"}}
	_, err = NewS3Manifest(bad, "bucket", "").ProductIDs(context.Background(), "sr-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}
