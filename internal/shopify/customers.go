package shopify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/elevenby-design/bridal-showroom-webhooks/internal/showroom"
)

var _ showroom.Store = (*Client)(nil)

type customerEnvelope struct {
	Customer showroom.Customer `json:"customer"`
}

type customersEnvelope struct {
	Customers []showroom.Customer `json:"customers"`
}

type activationURLEnvelope struct {
	URL string `json:"account_activation_url"`
}

type customerCreate struct {
	Email           string `json:"email"`
	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
	Note            string `json:"note,omitempty"`
	Tags            string `json:"tags,omitempty"`
	State           string `json:"state,omitempty"`
	SendEmailInvite bool   `json:"send_email_invite"`
	SendWelcome     bool   `json:"send_email_welcome"`
}

type customerUpdate struct {
	ID        int64   `json:"id"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Tags      *string `json:"tags,omitempty"`
	Note      *string `json:"note,omitempty"`
}

// FindCustomerByEmail runs an email: search and keeps only an exact,
// case-sensitive match. Shopify's search also returns prefix and
// differently cased matches.
func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (*showroom.Customer, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	q := url.Values{}
	q.Set("query", "email:"+email)
	q.Set("limit", "10")

	out, err := call[customersEnvelope](ctx, c, http.MethodGet, "/customers/search.json?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	for i := range out.Customers {
		if strings.TrimSpace(out.Customers[i].Email) == email {
			cust := out.Customers[i]
			return &cust, nil
		}
	}
	return nil, nil
}

func (c *Client) GetCustomer(ctx context.Context, id int64) (*showroom.Customer, error) {
	out, err := call[customerEnvelope](ctx, c, http.MethodGet, fmt.Sprintf("/customers/%d.json", id), nil)
	if err != nil {
		return nil, err
	}
	return &out.Customer, nil
}

// CreateCustomer never asks Shopify to send its own invite; SendInvite does
// that when it is wanted.
func (c *Client) CreateCustomer(ctx context.Context, in showroom.NewCustomer) (*showroom.Customer, error) {
	body := map[string]customerCreate{
		"customer": {
			Email:     strings.TrimSpace(in.Email),
			FirstName: in.FirstName,
			LastName:  in.LastName,
			Note:      in.Note,
			Tags:      strings.Join(in.Tags, ", "),
			State:     in.State,
		},
	}
	out, err := call[customerEnvelope](ctx, c, http.MethodPost, "/customers.json", body)
	if err != nil {
		return nil, err
	}
	return &out.Customer, nil
}

func (c *Client) UpdateCustomer(ctx context.Context, id int64, upd showroom.CustomerUpdate) (*showroom.Customer, error) {
	body := map[string]customerUpdate{
		"customer": {
			ID:        id,
			FirstName: upd.FirstName,
			LastName:  upd.LastName,
			Tags:      upd.Tags,
			Note:      upd.Note,
		},
	}
	out, err := call[customerEnvelope](ctx, c, http.MethodPut, fmt.Sprintf("/customers/%d.json", id), body)
	if err != nil {
		return nil, err
	}
	return &out.Customer, nil
}

func (c *Client) SendInvite(ctx context.Context, customerID int64) error {
	body := map[string]any{"customer_invite": map[string]any{}}
	_, err := call[struct{}](ctx, c, http.MethodPost, fmt.Sprintf("/customers/%d/send_invite.json", customerID), body)
	return err
}

func (c *Client) ActivationURL(ctx context.Context, customerID int64) (string, error) {
	out, err := call[activationURLEnvelope](ctx, c, http.MethodPost, fmt.Sprintf("/customers/%d/account_activation_url.json", customerID), nil)
	if err != nil {
		return "", err
	}
	return out.URL, nil
}
