package showroom

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/elevenby-design/bridal-showroom-webhooks/internal/errors"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/logger"
)

const (
	TopicCustomerCreate = "customers/create"
	TopicCustomerLogin  = "customers/login"
	TopicCustomerUpdate = "customers/update"
	TopicOrderCreate    = "orders/create"
	TopicOrderPaid      = "orders/paid"
)

// Event is one inbound Shopify webhook delivery.
type Event struct {
	Topic     string
	Body      []byte
	Signature string
	WebhookID string
}

type Transition struct {
	ShowroomID string `json:"showroom_id"`
	From       Status `json:"from"`
	To         Status `json:"to"`
}

type Outcome struct {
	Topic       string       `json:"topic"`
	Email       string       `json:"email,omitempty"`
	Ignored     bool         `json:"ignored,omitempty"`
	Transitions []Transition `json:"transitions,omitempty"`
	// Failed lists what could not be done. The event can be replayed safely.
	Failed []string `json:"failed,omitempty"`
}

func (o *Outcome) fail(format string, args ...any) {
	o.Failed = append(o.Failed, fmt.Sprintf(format, args...))
}

type customerPayload struct {
	ID    flexString `json:"id"`
	Email string     `json:"email"`
	State string     `json:"state"`
}

type orderPayload struct {
	ID           flexString `json:"id"`
	Email        string     `json:"email"`
	ContactEmail string     `json:"contact_email"`
	Customer     *struct {
		Email string `json:"email"`
	} `json:"customer"`
	LineItems []struct {
		ProductID flexString `json:"product_id"`
	} `json:"line_items"`
}

func (o orderPayload) email() string {
	if e := strings.TrimSpace(o.Email); e != "" {
		return e
	}
	if o.Customer != nil && strings.TrimSpace(o.Customer.Email) != "" {
		return strings.TrimSpace(o.Customer.Email)
	}
	return strings.TrimSpace(o.ContactEmail)
}

type LifecycleOptions struct {
	Secret string
	Now    func() time.Time
}

// LifecycleProcessor moves invited memberships to joined and purchased as
// Shopify reports sign ups, logins and orders.
type LifecycleProcessor struct {
	store    Store
	rec      *Reconciler
	products ProductSource
	notifier Notifier
	log      *logger.Logger
	secret   []byte
	now      func() time.Time
}

// NewLifecycleProcessor accepts nil products and notifier.
func NewLifecycleProcessor(store Store, rec *Reconciler, products ProductSource, notifier Notifier, log *logger.Logger, opts LifecycleOptions) *LifecycleProcessor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &LifecycleProcessor{
		store:    store,
		rec:      rec,
		products: products,
		notifier: notifier,
		log:      log,
		secret:   []byte(opts.Secret),
		now:      opts.Now,
	}
}

// Verify checks Shopify's base64 HMAC-SHA256 of the raw body.
func (p *LifecycleProcessor) Verify(body []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if len(p.secret) == 0 || signature == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "Unauthorized")
	}
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "Unauthorized")
	}
	return nil
}

// Process verifies and applies one webhook. Only an invalid signature is
// returned as an error; everything else is reported in the outcome.
func (p *LifecycleProcessor) Process(ctx context.Context, ev Event) (*Outcome, error) {
	if err := p.Verify(ev.Body, ev.Signature); err != nil {
		return nil, err
	}
	return p.Apply(ctx, ev), nil
}

// Apply runs an event whose origin is already trusted, such as one
// delivered through EventBridge.
func (p *LifecycleProcessor) Apply(ctx context.Context, ev Event) *Outcome {
	topic := strings.ToLower(strings.TrimSpace(ev.Topic))
	out := &Outcome{Topic: topic}
	ctx = p.log.WithFields(ctx, map[string]any{"topic": topic, "webhook_id": ev.WebhookID})

	switch topic {
	case TopicCustomerCreate, TopicCustomerLogin, TopicCustomerUpdate:
		var c customerPayload
		if err := json.Unmarshal(ev.Body, &c); err != nil {
			out.fail("decode customer payload: %v", err)
			return out
		}
		out.Email = strings.TrimSpace(c.Email)
		if out.Email == "" || (topic == TopicCustomerUpdate && !strings.EqualFold(c.State, AccountEnabled)) {
			out.Ignored = true
			return out
		}
		p.join(p.log.WithEmail(ctx, out.Email), out, parseID(string(c.ID)))
	case TopicOrderCreate, TopicOrderPaid:
		var o orderPayload
		if err := json.Unmarshal(ev.Body, &o); err != nil {
			out.fail("decode order payload: %v", err)
			return out
		}
		out.Email = o.email()
		if out.Email == "" {
			out.Ignored = true
			return out
		}
		p.purchase(p.log.WithEmail(ctx, out.Email), out, o)
	default:
		out.Ignored = true
		p.log.Info(ctx, "webhook topic ignored")
		return out
	}

	for _, f := range out.Failed {
		p.log.Warn(ctx, "lifecycle step failed: "+f)
	}
	return out
}

// load fetches the customer and their showroom state. A nil customer means
// there is nothing to do.
func (p *LifecycleProcessor) load(ctx context.Context, out *Outcome) (*Customer, State, bool) {
	cust, err := p.store.FindCustomerByEmail(ctx, out.Email)
	if err != nil {
		out.fail("search customer: %v", err)
		return nil, State{}, false
	}
	if cust == nil {
		out.Ignored = true
		return nil, State{}, false
	}
	mfs, err := p.store.ListMetafields(ctx, cust.ID)
	if err != nil {
		out.fail("list metafields: %v", err)
		return nil, State{}, false
	}
	st := Reconstruct(mfs)
	for _, w := range st.Warnings {
		p.log.Warn(ctx, "unreadable showroom record: "+w.Error())
	}
	return cust, st, true
}

func (p *LifecycleProcessor) join(ctx context.Context, out *Outcome, payloadID int64) {
	cust, st, ok := p.load(ctx, out)
	if !ok {
		return
	}
	customerID := cust.ID
	if customerID == 0 {
		customerID = payloadID
	}
	ctx = p.log.WithCustomerID(ctx, customerID)
	now := p.now().UTC().Format(time.RFC3339)

	for _, m := range st.Invited {
		if m.Status != StatusInvited {
			continue
		}
		next := m
		next.Status = StatusJoined
		next.JoinedDate = now
		next.CustomerID = customerID
		p.transition(ctx, out, cust, st, m, next, map[string]string{
			keyJoinedDate: now,
			keyCustomerID: strconv.FormatInt(customerID, 10),
		})
	}
}

func (p *LifecycleProcessor) purchase(ctx context.Context, out *Outcome, o orderPayload) {
	cust, st, ok := p.load(ctx, out)
	if !ok {
		return
	}
	ctx = p.log.WithCustomerID(ctx, cust.ID)

	ordered := map[string]bool{}
	for _, li := range o.LineItems {
		if id := strings.TrimSpace(string(li.ProductID)); id != "" {
			ordered[id] = true
		}
	}
	orderID := string(o.ID)
	now := p.now().UTC().Format(time.RFC3339)

	for _, m := range st.Invited {
		if m.Status != StatusJoined {
			continue
		}
		if p.products == nil {
			continue
		}
		ids, err := p.products.ProductIDs(ctx, m.ShowroomID)
		if err != nil {
			out.fail("showroom %s products: %v", m.ShowroomID, err)
			continue
		}
		if !overlaps(ids, ordered) {
			continue
		}
		next := m
		next.Status = StatusPurchased
		next.PurchasedDate = now
		next.OrderID = orderID
		p.transition(ctx, out, cust, st, m, next, map[string]string{
			keyPurchasedDate: now,
			keyOrderID:       orderID,
		})
	}
}

// transition writes next for membership m: the blob whenever the showroom is
// known and the flat keys when they describe it.
func (p *LifecycleProcessor) transition(ctx context.Context, out *Outcome, cust *Customer, st State, m, next Membership, stamps map[string]string) {
	fields := map[string]string{}
	if m.ShowroomID != UnknownShowroomID {
		if b, err := json.Marshal(recordFromMembership(next)); err == nil {
			fields[MembershipKey(m.ShowroomID)] = string(b)
		}
	}
	if st.LegacyShowroomID == m.ShowroomID {
		fields[keyStatus] = string(next.Status)
		for k, v := range stamps {
			fields[k] = v
		}
	}

	res, err := p.rec.UpsertMembership(ctx, UpsertRequest{
		Email:     out.Email,
		Namespace: NamespaceInvitee,
		Fields:    fields,
		Customer:  cust,
	})
	if err != nil {
		out.fail("showroom %s %s: %v", m.ShowroomID, next.Status, err)
		return
	}
	if len(res.Failed) > 0 {
		for _, f := range res.Failed {
			out.fail("showroom %s write %s: %s", m.ShowroomID, f.Key, f.Err)
		}
		return
	}

	tr := Transition{ShowroomID: m.ShowroomID, From: m.Status, To: next.Status}
	out.Transitions = append(out.Transitions, tr)
	p.log.Info(p.log.WithField(ctx, "showroom_id", m.ShowroomID), "membership "+string(tr.From)+" -> "+string(tr.To))

	if p.notifier == nil {
		return
	}
	n := Notification{
		Email:      out.Email,
		CustomerID: cust.ID,
		ShowroomID: m.ShowroomID,
		From:       tr.From,
		To:         tr.To,
		Topic:      out.Topic,
		OrderID:    next.OrderID,
		OccurredAt: p.now().UTC(),
	}
	if err := p.notifier.Notify(ctx, n); err != nil {
		p.log.Warn(ctx, "transition notification failed: "+err.Error())
	}
}

func overlaps(showroomProducts []string, ordered map[string]bool) bool {
	for _, id := range showroomProducts {
		if ordered[strings.TrimSpace(id)] {
			return true
		}
	}
	return false
}
