package shopify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const recentOrdersLimit = 10

type OrderLineItem struct {
	ID        int64  `json:"id"`
	ProductID *int64 `json:"product_id"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
}

type Order struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	CreatedAt       string          `json:"created_at"`
	FinancialStatus string          `json:"financial_status"`
	TotalPrice      string          `json:"total_price"`
	Currency        string          `json:"currency"`
	LineItems       []OrderLineItem `json:"line_items"`
}

type ordersEnvelope struct {
	Orders []Order `json:"orders"`
}

// ListOrders returns the customer's most recent orders in any status,
// optionally only those created at or after createdAtMin (RFC 3339).
func (c *Client) ListOrders(ctx context.Context, customerID int64, createdAtMin string) ([]Order, error) {
	q := url.Values{}
	q.Set("customer_id", fmt.Sprint(customerID))
	q.Set("status", "any")
	q.Set("limit", fmt.Sprint(recentOrdersLimit))
	if s := strings.TrimSpace(createdAtMin); s != "" {
		q.Set("created_at_min", s)
	}
	out, err := call[ordersEnvelope](ctx, c, http.MethodGet, "/orders.json?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if out.Orders == nil {
		return []Order{}, nil
	}
	return out.Orders, nil
}
