package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/elevenby-design/bridal-showroom-webhooks/internal/errors"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/shopify"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/showroom"
)

// CustomerDirectory is the slice of the Admin API the storefront may query
// directly.
type CustomerDirectory interface {
	FindCustomerByEmail(ctx context.Context, email string) (*showroom.Customer, error)
	ListOrders(ctx context.Context, customerID int64, createdAtMin string) ([]shopify.Order, error)
}

type lookupRequest struct {
	Mode         string `json:"mode"`
	Email        string `json:"email"`
	CustomerID   int64  `json:"customerId"`
	CreatedAtMin string `json:"createdAtMin"`
}

type lookupCustomers struct {
	Customers []showroom.Customer `json:"customers"`
}

type lookupOrders struct {
	Orders []shopify.Order `json:"orders"`
}

// NewCustomerLookup lets the storefront poll for a customer ("search") or
// for their orders since a point in time ("orders").
func NewCustomerLookup(b Base, dir CustomerDirectory) Func {
	return b.serve([]string{http.MethodPost}, func(ctx context.Context, req Request) (int, any, error) {
		var in lookupRequest
		if err := decodeBody(req, &in); err != nil {
			return 0, nil, err
		}
		switch strings.ToLower(strings.TrimSpace(in.Mode)) {
		case "search":
			if strings.TrimSpace(in.Email) == "" {
				return 0, nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
			}
			cust, err := dir.FindCustomerByEmail(ctx, in.Email)
			if err != nil {
				return 0, nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "search customer")
			}
			out := lookupCustomers{Customers: []showroom.Customer{}}
			if cust != nil {
				out.Customers = append(out.Customers, *cust)
			}
			return http.StatusOK, out, nil
		case "orders":
			if in.CustomerID <= 0 {
				return 0, nil, pkgerrors.New(pkgerrors.CodeValidation, "customerId is required")
			}
			if in.CreatedAtMin != "" {
				if _, err := time.Parse(time.RFC3339, in.CreatedAtMin); err != nil {
					return 0, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "createdAtMin must be RFC 3339")
				}
			}
			orders, err := dir.ListOrders(ctx, in.CustomerID, in.CreatedAtMin)
			if err != nil {
				return 0, nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "list orders")
			}
			return http.StatusOK, lookupOrders{Orders: orders}, nil
		default:
			return 0, nil, pkgerrors.New(pkgerrors.CodeValidation, "Invalid mode")
		}
	})
}
