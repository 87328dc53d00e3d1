package showroom

import (
	"context"
	"time"
)

// Store is the customer record and metafield access the showroom needs.
// The Shopify client implements it.
type Store interface {
	// FindCustomerByEmail returns nil, nil when no customer has that email.
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	CreateCustomer(ctx context.Context, in NewCustomer) (*Customer, error)
	UpdateCustomer(ctx context.Context, id int64, upd CustomerUpdate) (*Customer, error)
	ListMetafields(ctx context.Context, customerID int64) ([]Metafield, error)
	// SetMetafield creates the metafield or overwrites the one with the same
	// namespace and key.
	SetMetafield(ctx context.Context, customerID int64, mf Metafield) (*Metafield, error)
	DeleteMetafield(ctx context.Context, customerID, metafieldID int64) error
	// SendInvite asks the store to email the customer an account activation link.
	SendInvite(ctx context.Context, customerID int64) error
	// ActivationURL returns a fresh account activation link for a disabled customer.
	ActivationURL(ctx context.Context, customerID int64) (string, error)
}

type NewCustomer struct {
	Email     string
	FirstName string
	LastName  string
	Note      string
	Tags      []string
	// State is the initial account state, usually AccountDisabled.
	State string
}

// CustomerUpdate changes only the non-nil fields.
type CustomerUpdate struct {
	FirstName *string
	LastName  *string
	Tags      *string
	Note      *string
}

func (u CustomerUpdate) Empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Tags == nil && u.Note == nil
}

// Marketer records marketing events. The Klaviyo client implements it.
type Marketer interface {
	Track(ctx context.Context, ev MarketingEvent) error
}

type MarketingEvent struct {
	Metric    string
	Email     string
	FirstName string
	LastName  string
	// ProfileProperties are stored on the marketing profile.
	ProfileProperties map[string]any
	// Properties travel with the event itself.
	Properties map[string]any
	// UniqueID deduplicates the event on the marketing side.
	UniqueID string
	Time     time.Time
}

// ProductSource lists the product ids that belong to a showroom.
type ProductSource interface {
	ProductIDs(ctx context.Context, showroomID string) ([]string, error)
}

// Notifier publishes membership status transitions.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type Notification struct {
	Email      string    `json:"email"`
	CustomerID int64     `json:"customer_id"`
	ShowroomID string    `json:"showroom_id"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	Topic      string    `json:"topic"`
	OrderID    string    `json:"order_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
