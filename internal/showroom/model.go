// Package showroom turns the flat metafield list Shopify keeps per customer
// into bridal showroom memberships and drives their invited/joined/purchased
// lifecycle.
package showroom

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

const (
	// NamespaceInvitee holds the records written for an invited bridal party member.
	NamespaceInvitee = "bridal_showroom"
	// NamespaceOwner holds the bride's own showroom records.
	NamespaceOwner = "showroom"

	KeyShowroomData    = "showroom_data"
	KeyShowroomDataAlt = "data"

	membershipKeyPrefix = "membership_"

	// UnknownShowroomID is used for legacy records that never stored an id.
	UnknownShowroomID = "unknown"

	AccountEnabled  = "enabled"
	AccountDisabled = "disabled"
)

// Legacy flat keys in the invitee namespace.
const (
	keyShowroomID    = "showroom_id"
	keyStatus        = "status"
	keyRoles         = "roles"
	keyBrideName     = "bride_name"
	keyWeddingDate   = "wedding_date"
	keyInviteDate    = "invite_date"
	keyJoinedDate    = "joined_date"
	keyPurchasedDate = "purchased_date"
	keyCustomerID    = "customer_id"
	keyOrderID       = "order_id"
)

type Status string

const (
	StatusInvited   Status = "invited"
	StatusJoined    Status = "joined"
	StatusPurchased Status = "purchased"
)

// ParseStatus returns the empty status for anything it does not recognise.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusInvited:
		return StatusInvited
	case StatusJoined:
		return StatusJoined
	case StatusPurchased:
		return StatusPurchased
	default:
		return ""
	}
}

func (s Status) Rank() int {
	switch s {
	case StatusInvited:
		return 1
	case StatusJoined:
		return 2
	case StatusPurchased:
		return 3
	default:
		return 0
	}
}

// Advance moves s forward to `to`. Status never regresses.
func (s Status) Advance(to Status) Status {
	if to.Rank() > s.Rank() {
		return to
	}
	return s
}

type Role string

const (
	RoleOwner   Role = "owned"
	RoleInvited Role = "invited"
)

// Customer is the subset of the Shopify customer resource the showroom needs.
type Customer struct {
	ID                   int64  `json:"id"`
	Email                string `json:"email"`
	FirstName            string `json:"first_name"`
	LastName             string `json:"last_name"`
	State                string `json:"state"`
	Tags                 string `json:"tags"`
	Note                 string `json:"note,omitempty"`
	AccountActivationURL string `json:"account_activation_url,omitempty"`
}

func (c *Customer) Enabled() bool {
	return c != nil && strings.EqualFold(c.State, AccountEnabled)
}

// Metafield is one namespaced key/value attribute attached to a customer.
type Metafield struct {
	ID        int64  `json:"id,omitempty"`
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Type      string `json:"type"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Membership is the derived view of one customer's relation to one showroom.
type Membership struct {
	ShowroomID    string   `json:"id"`
	Role          Role     `json:"type"`
	BrideName     string   `json:"bride_name"`
	WeddingDate   string   `json:"wedding_date"`
	Roles         []string `json:"roles"`
	Status        Status   `json:"status,omitempty"`
	InviteDate    string   `json:"invite_date,omitempty"`
	JoinedDate    string   `json:"joined_date,omitempty"`
	PurchasedDate string   `json:"purchased_date,omitempty"`
	OrderID       string   `json:"order_id,omitempty"`
	PartySize     int      `json:"party_size,omitempty"`
	CreatedDate   string   `json:"created_date,omitempty"`
	UpdatedDate   string   `json:"updated_date,omitempty"`

	CustomerID int64 `json:"-"`
	// Legacy marks a membership read from the flat bridal_showroom keys.
	Legacy bool `json:"-"`
}

// membershipRecord is the stored JSON blob for one invited membership.
type membershipRecord struct {
	ShowroomID    string     `json:"showroom_id"`
	Status        Status     `json:"status"`
	Roles         []string   `json:"roles,omitempty"`
	BrideName     string     `json:"bride_name,omitempty"`
	WeddingDate   string     `json:"wedding_date,omitempty"`
	InviteDate    string     `json:"invite_date,omitempty"`
	JoinedDate    string     `json:"joined_date,omitempty"`
	PurchasedDate string     `json:"purchased_date,omitempty"`
	CustomerID    flexString `json:"customer_id,omitempty"`
	OrderID       flexString `json:"order_id,omitempty"`
}

func (r membershipRecord) membership() Membership {
	return Membership{
		ShowroomID:    r.ShowroomID,
		Role:          RoleInvited,
		BrideName:     r.BrideName,
		WeddingDate:   r.WeddingDate,
		Roles:         r.Roles,
		Status:        ParseStatus(string(r.Status)),
		InviteDate:    r.InviteDate,
		JoinedDate:    r.JoinedDate,
		PurchasedDate: r.PurchasedDate,
		OrderID:       string(r.OrderID),
		CustomerID:    parseID(string(r.CustomerID)),
	}
}

func recordFromMembership(m Membership) membershipRecord {
	rec := membershipRecord{
		ShowroomID:    m.ShowroomID,
		Status:        m.Status,
		Roles:         m.Roles,
		BrideName:     m.BrideName,
		WeddingDate:   m.WeddingDate,
		InviteDate:    m.InviteDate,
		JoinedDate:    m.JoinedDate,
		PurchasedDate: m.PurchasedDate,
		OrderID:       flexString(m.OrderID),
	}
	if m.CustomerID != 0 {
		rec.CustomerID = flexString(strconv.FormatInt(m.CustomerID, 10))
	}
	return rec
}

// MembershipKey is the invitee-namespace key holding the blob for showroomID.
func MembershipKey(showroomID string) string {
	return membershipKeyPrefix + showroomID
}

// ownedRecord is the bride's showroom_data blob. Only the fields the
// showroom logic reads are declared; the storefront may keep more.
type ownedRecord struct {
	ShowroomID  flexString        `json:"showroom_id"`
	ID          flexString        `json:"id"`
	BrideName   string            `json:"bride_name"`
	WeddingDate string            `json:"wedding_date"`
	PartySize   flexInt           `json:"party_size"`
	BridalParty []json.RawMessage `json:"bridal_party"`
}

func (r ownedRecord) showroomID() string {
	if id := strings.TrimSpace(string(r.ShowroomID)); id != "" {
		return id
	}
	return strings.TrimSpace(string(r.ID))
}

func (r ownedRecord) partySize() int {
	if r.PartySize > 0 {
		return int(r.PartySize)
	}
	return len(r.BridalParty)
}

// parseOwnedRecord accepts the blob either as a JSON object or as a JSON
// string that itself contains the object.
func parseOwnedRecord(value string) (ownedRecord, error) {
	raw := []byte(strings.TrimSpace(value))
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return ownedRecord{}, err
		}
		raw = []byte(inner)
	}
	var rec ownedRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return ownedRecord{}, err
	}
	return rec, nil
}

// flexString decodes a JSON string or number into a string.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexInt decodes a JSON number or numeric string into an int.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(string(s), 64)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}
