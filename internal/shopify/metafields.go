package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/elevenby-design/bridal-showroom-webhooks/internal/showroom"
)

// metafieldWire mirrors the REST resource. value is a string for text and
// json types but a number or bool for others.
type metafieldWire struct {
	ID        int64           `json:"id,omitempty"`
	Namespace string          `json:"namespace"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Type      string          `json:"type"`
	CreatedAt string          `json:"created_at,omitempty"`
	UpdatedAt string          `json:"updated_at,omitempty"`
}

func (w metafieldWire) metafield() showroom.Metafield {
	value := string(w.Value)
	var s string
	if err := json.Unmarshal(w.Value, &s); err == nil {
		value = s
	} else if value == "null" {
		value = ""
	}
	return showroom.Metafield{
		ID:        w.ID,
		Namespace: w.Namespace,
		Key:       w.Key,
		Value:     value,
		Type:      w.Type,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

type metafieldRequest struct {
	ID        int64  `json:"id,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	Key       string `json:"key,omitempty"`
	Value     string `json:"value"`
	Type      string `json:"type"`
}

type metafieldEnvelope struct {
	Metafield metafieldWire `json:"metafield"`
}

type metafieldsEnvelope struct {
	Metafields []metafieldWire `json:"metafields"`
}

const metafieldPageLimit = 250

func (c *Client) ListMetafields(ctx context.Context, customerID int64) ([]showroom.Metafield, error) {
	return c.listMetafields(ctx, customerID, url.Values{})
}

func (c *Client) listMetafields(ctx context.Context, customerID int64, q url.Values) ([]showroom.Metafield, error) {
	q.Set("limit", fmt.Sprint(metafieldPageLimit))
	out, err := call[metafieldsEnvelope](ctx, c, http.MethodGet, fmt.Sprintf("/customers/%d/metafields.json?%s", customerID, q.Encode()), nil)
	if err != nil {
		return nil, err
	}
	mfs := make([]showroom.Metafield, 0, len(out.Metafields))
	for _, w := range out.Metafields {
		mfs = append(mfs, w.metafield())
	}
	return mfs, nil
}

// SetMetafield creates the metafield. When Shopify rejects the create
// because the key exists, the existing metafield is updated instead.
func (c *Client) SetMetafield(ctx context.Context, customerID int64, mf showroom.Metafield) (*showroom.Metafield, error) {
	body := map[string]metafieldRequest{
		"metafield": {Namespace: mf.Namespace, Key: mf.Key, Value: mf.Value, Type: mf.Type},
	}
	out, err := call[metafieldEnvelope](ctx, c, http.MethodPost, fmt.Sprintf("/customers/%d/metafields.json", customerID), body)
	if err == nil {
		m := out.Metafield.metafield()
		return &m, nil
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnprocessableEntity {
		return nil, err
	}
	q := url.Values{}
	q.Set("namespace", mf.Namespace)
	q.Set("key", mf.Key)
	existing, listErr := c.listMetafields(ctx, customerID, q)
	if listErr != nil {
		return nil, err
	}
	for _, e := range existing {
		if e.Namespace != mf.Namespace || e.Key != mf.Key {
			continue
		}
		upd := map[string]metafieldRequest{
			"metafield": {ID: e.ID, Value: mf.Value, Type: mf.Type},
		}
		out, err := call[metafieldEnvelope](ctx, c, http.MethodPut, fmt.Sprintf("/customers/%d/metafields/%d.json", customerID, e.ID), upd)
		if err != nil {
			return nil, err
		}
		m := out.Metafield.metafield()
		return &m, nil
	}
	return nil, err
}

func (c *Client) DeleteMetafield(ctx context.Context, customerID, metafieldID int64) error {
	_, err := call[struct{}](ctx, c, http.MethodDelete, fmt.Sprintf("/customers/%d/metafields/%d.json", customerID, metafieldID), nil)
	return err
}
