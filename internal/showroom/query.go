package showroom

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	pkgerrors "github.com/elevenby-design/bridal-showroom-webhooks/internal/errors"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/logger"
)

const DefaultStatusConcurrency = 5

// Query answers the read-only questions the storefront asks.
type Query struct {
	store       Store
	log         *logger.Logger
	concurrency int
}

func NewQuery(store Store, log *logger.Logger, concurrency int) *Query {
	if concurrency <= 0 {
		concurrency = DefaultStatusConcurrency
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Query{store: store, log: log, concurrency: concurrency}
}

type ShowroomList struct {
	CustomerID     int64        `json:"customer_id"`
	Email          string       `json:"email"`
	Showrooms      []Membership `json:"showrooms"`
	TotalShowrooms int          `json:"total_showrooms"`
}

func (q *Query) load(ctx context.Context, email string) (*Customer, State, error) {
	cust, err := q.store.FindCustomerByEmail(ctx, email)
	if err != nil {
		return nil, State{}, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "search customer")
	}
	if cust == nil {
		return nil, State{}, nil
	}
	mfs, err := q.store.ListMetafields(ctx, cust.ID)
	if err != nil {
		return nil, State{}, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "list metafields")
	}
	st := Reconstruct(mfs)
	for _, w := range st.Warnings {
		q.log.Warn(ctx, "unreadable showroom record: "+w.Error())
	}
	return cust, st, nil
}

// ListShowroomsForEmail returns the owned showroom first, then invitations.
func (q *Query) ListShowroomsForEmail(ctx context.Context, email string) (*ShowroomList, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Email parameter is required")
	}
	cust, st, err := q.load(q.log.WithEmail(ctx, email), email)
	if err != nil {
		return nil, err
	}
	if cust == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Customer not found")
	}
	showrooms := st.All()
	for i := range showrooms {
		if showrooms[i].Roles == nil {
			showrooms[i].Roles = []string{}
		}
	}
	return &ShowroomList{
		CustomerID:     cust.ID,
		Email:          email,
		Showrooms:      showrooms,
		TotalShowrooms: len(showrooms),
	}, nil
}

// StatusRecord is the effective membership status of one email.
type StatusRecord struct {
	Status       Status
	JoinedDate   string
	CustomerID   int64
	AccountState string
	ShowroomID   string
	// Found is false when no customer matched the email.
	Found bool
	Error string
}

func (r StatusRecord) MarshalJSON() ([]byte, error) {
	out := map[string]any{"status": nil}
	if r.Status != "" {
		out["status"] = r.Status
	}
	if r.Found {
		out["joinedDate"] = nil
		if r.JoinedDate != "" {
			out["joinedDate"] = r.JoinedDate
		}
		out["customerId"] = r.CustomerID
		out["accountState"] = r.AccountState
		if r.ShowroomID != "" {
			out["showroomId"] = r.ShowroomID
		}
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	return json.Marshal(out)
}

// GetStatusForEmails resolves every email independently. A failed lookup is
// recorded on that email and never fails the batch.
func (q *Query) GetStatusForEmails(ctx context.Context, emails []string, showroomID string) map[string]StatusRecord {
	results := make(map[string]StatusRecord, len(emails))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(q.concurrency)
	seen := map[string]bool{}
	for _, email := range emails {
		if seen[email] {
			continue
		}
		seen[email] = true
		email := email
		g.Go(func() error {
			rec := q.statusFor(ctx, email, showroomID)
			mu.Lock()
			results[email] = rec
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (q *Query) statusFor(ctx context.Context, email, showroomID string) StatusRecord {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return StatusRecord{Error: "email is required"}
	}
	ctx = q.log.WithEmail(ctx, trimmed)
	cust, st, err := q.load(ctx, trimmed)
	if err != nil {
		q.log.Error(ctx, "status lookup failed", err)
		msg := err.Error()
		if typed := pkgerrors.As(err); typed != nil {
			msg = typed.Detail()
		}
		return StatusRecord{Error: msg}
	}
	if cust == nil {
		return StatusRecord{}
	}

	rec := StatusRecord{Found: true, CustomerID: cust.ID, AccountState: cust.State}
	var m Membership
	var ok bool
	if showroomID != "" {
		m, ok = st.Membership(showroomID)
	} else {
		m, ok = st.Latest()
	}
	if !ok {
		return rec
	}
	rec.Status = EffectiveStatus(m.Status, cust)
	rec.JoinedDate = m.JoinedDate
	rec.ShowroomID = m.ShowroomID
	return rec
}

// EffectiveStatus reports an activated account that is still marked invited
// as joined. Nothing is written.
func EffectiveStatus(stored Status, cust *Customer) Status {
	if stored == StatusInvited && cust.Enabled() {
		return StatusJoined
	}
	return stored
}

// GetOwnedShowroomData returns the bride's raw showroom metafields by key,
// decoding JSON values.
func (q *Query) GetOwnedShowroomData(ctx context.Context, email string) (map[string]any, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Email parameter is required")
	}
	ctx = q.log.WithEmail(ctx, email)
	cust, err := q.store.FindCustomerByEmail(ctx, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "search customer")
	}
	if cust == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Customer not found")
	}
	mfs, err := q.store.ListMetafields(ctx, cust.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "list metafields")
	}

	data := map[string]any{}
	for _, mf := range mfs {
		if mf.Namespace != NamespaceOwner {
			continue
		}
		var decoded any
		if err := json.Unmarshal([]byte(mf.Value), &decoded); err == nil {
			data[mf.Key] = decoded
		} else {
			data[mf.Key] = mf.Value
		}
	}
	if len(data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "No showroom data found")
	}
	return data, nil
}
