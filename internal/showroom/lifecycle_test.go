package showroom

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/elevenby-design/bridal-showroom-webhooks/internal/errors"
)

const testSecret = "shpss_test_secret"

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func newTestProcessor(store *fakeStore, products ProductSource, notifier Notifier) *LifecycleProcessor {
	return NewLifecycleProcessor(store, newTestReconciler(store), products, notifier, nil, LifecycleOptions{
		Secret: testSecret,
		Now:    fixedNow,
	})
}

func event(topic, body string) Event {
	return Event{Topic: topic, Body: []byte(body), Signature: sign(body), WebhookID: "wh-1"}
}

func TestProcessRejectsBadSignature(t *testing.T) {
	store := newFakeStore()
	store.addCustomer(Customer{Email: "guest@example.com"}, invitee("showroom_id", "sr-1"), invitee("status", "invited"))
	p := newTestProcessor(store, nil, nil)
	body := `{"id":1,"email":"guest@example.com"}`

	for _, sig := range []string{"", "bm90LXRoZS1zaWduYXR1cmU=", sign(body + " ")} {
		_, err := p.Process(context.Background(), Event{Topic: TopicCustomerLogin, Body: []byte(body), Signature: sig})
		require.Error(t, err)
		assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))
	}
	assert.Empty(t, store.setCalls)
	assert.Equal(t, 0, store.writeCount())
}

func TestVerifyWithoutSecretRejects(t *testing.T) {
	p := NewLifecycleProcessor(newFakeStore(), nil, nil, nil, nil, LifecycleOptions{})
	err := p.Verify([]byte("{}"), sign("{}"))
	assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))
}

func TestProcessLoginJoinsInvitedMembership(t *testing.T) {
	store := newFakeStore()
	cust := store.addCustomer(Customer{Email: "guest@example.com", State: AccountEnabled},
		invitee("showroom_id", "sr-1"),
		invitee("status", "invited"),
	)
	notifier := &fakeNotifier{}
	p := newTestProcessor(store, nil, notifier)

	out, err := p.Process(context.Background(), event(TopicCustomerLogin, `{"id":1,"email":"guest@example.com"}`))
	require.NoError(t, err)
	require.Len(t, out.Transitions, 1)
	assert.Equal(t, Transition{ShowroomID: "sr-1", From: StatusInvited, To: StatusJoined}, out.Transitions[0])
	assert.Empty(t, out.Failed)

	status, _ := store.value(cust.ID, NamespaceInvitee, "status")
	assert.Equal(t, "joined", status)
	joined, _ := store.value(cust.ID, NamespaceInvitee, "joined_date")
	assert.Equal(t, "2024-06-01T12:00:00Z", joined)
	customerID, _ := store.value(cust.ID, NamespaceInvitee, "customer_id")
	assert.Equal(t, "1001", customerID)

	st := Reconstruct(store.metafields[cust.ID])
	m, ok := st.Membership("sr-1")
	require.True(t, ok)
	assert.Equal(t, StatusJoined, m.Status)
	assert.False(t, m.Legacy)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, StatusJoined, notifier.sent[0].To)
	assert.Equal(t, TopicCustomerLogin, notifier.sent[0].Topic)
}

func TestProcessRedeliveryIsIdempotent(t *testing.T) {
	store := newFakeStore()
	cust := store.addCustomer(Customer{Email: "guest@example.com"},
		invitee(MembershipKey("sr-1"), `{"showroom_id":"sr-1","status":"invited"}`),
	)
	p := newTestProcessor(store, nil, nil)
	ev := event(TopicCustomerCreate, `{"id":1001,"email":"guest@example.com"}`)

	first, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, first.Transitions, 1)
	after := Reconstruct(store.metafields[cust.ID])
	writes := len(store.setCalls)

	second, err := p.Process(context.Background(), ev)
	require.NoError(t, err)
	assert.Empty(t, second.Transitions)
	assert.Equal(t, writes, len(store.setCalls))
	assert.Equal(t, after.Invited, Reconstruct(store.metafields[cust.ID]).Invited)
}

func TestProcessNeverRegressesPurchased(t *testing.T) {
	store := newFakeStore()
	cust := store.addCustomer(Customer{Email: "guest@example.com"},
		invitee("showroom_id", "sr-1"),
		invitee("status", "purchased"),
	)
	p := newTestProcessor(store, fakeProducts{"sr-1": {"10"}}, nil)

	for _, ev := range []Event{
		event(TopicCustomerLogin, `{"id":1001,"email":"guest@example.com"}`),
		event(TopicCustomerCreate, `{"id":1001,"email":"guest@example.com"}`),
		event(TopicOrderCreate, `{"id":5,"email":"guest@example.com","line_items":[{"product_id":10}]}`),
	} {
		out, err := p.Process(context.Background(), ev)
		require.NoError(t, err)
		assert.Empty(t, out.Transitions)
	}
	status, _ := store.value(cust.ID, NamespaceInvitee, "status")
	assert.Equal(t, "purchased", status)
	assert.Empty(t, store.setCalls)
}

func TestProcessOrderPurchasesJoinedMembership(t *testing.T) {
	store := newFakeStore()
	cust := store.addCustomer(Customer{Email: "guest@example.com"},
		invitee(MembershipKey("sr-1"), `{"showroom_id":"sr-1","status":"joined"}`),
		invitee(MembershipKey("sr-2"), `{"showroom_id":"sr-2","status":"joined"}`),
	)
	notifier := &fakeNotifier{}
	p := newTestProcessor(store, fakeProducts{"sr-1": {"10", "11"}, "sr-2": {"99"}}, notifier)

	body := `{"id":5001,"email":"","customer":{"email":"guest@example.com"},"line_items":[{"product_id":11},{"product_id":null}]}`
	out, err := p.Process(context.Background(), event(TopicOrderCreate, body))
	require.NoError(t, err)
	require.Len(t, out.Transitions, 1)
	assert.Equal(t, "sr-1", out.Transitions[0].ShowroomID)
	assert.Equal(t, StatusPurchased, out.Transitions[0].To)

	st := Reconstruct(store.metafields[cust.ID])
	m, _ := st.Membership("sr-1")
	assert.Equal(t, StatusPurchased, m.Status)
	assert.Equal(t, "5001", m.OrderID)
	assert.Equal(t, "2024-06-01T12:00:00Z", m.PurchasedDate)
	other, _ := st.Membership("sr-2")
	assert.Equal(t, StatusJoined, other.Status)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "5001", notifier.sent[0].OrderID)
}

func TestProcessOrderNeedsJoinedStatus(t *testing.T) {
	store := newFakeStore()
	store.addCustomer(Customer{Email: "guest@example.com", State: AccountEnabled},
		invitee(MembershipKey("sr-1"), `{"showroom_id":"sr-1","status":"invited"}`),
	)
	p := newTestProcessor(store, fakeProducts{"sr-1": {"10"}}, nil)

	out, err := p.Process(context.Background(), event(TopicOrderPaid, `{"id":5,"email":"guest@example.com","line_items":[{"product_id":10}]}`))
	require.NoError(t, err)
	assert.Empty(t, out.Transitions)
	assert.Empty(t, store.setCalls)
}

func TestProcessOrderWithoutProductSourceIsNoop(t *testing.T) {
	store := newFakeStore()
	store.addCustomer(Customer{Email: "guest@example.com"},
		invitee(MembershipKey("sr-1"), `{"showroom_id":"sr-1","status":"joined"}`),
	)
	p := newTestProcessor(store, nil, nil)

	out, err := p.Process(context.Background(), event(TopicOrderCreate, `{"id":5,"email":"guest@example.com","line_items":[{"product_id":10}]}`))
	require.NoError(t, err)
	assert.Empty(t, out.Transitions)
	assert.Empty(t, out.Failed)
}

func TestProcessCustomerUpdateOnlyWhenEnabled(t *testing.T) {
	store := newFakeStore()
	store.addCustomer(Customer{Email: "guest@example.com"},
		invitee(MembershipKey("sr-1"), `{"showroom_id":"sr-1","status":"invited"}`),
	)
	p := newTestProcessor(store, nil, nil)

	out, err := p.Process(context.Background(), event(TopicCustomerUpdate, `{"id":1001,"email":"guest@example.com","state":"invited"}`))
	require.NoError(t, err)
	assert.True(t, out.Ignored)
	assert.Empty(t, store.setCalls)

	out, err = p.Process(context.Background(), event(TopicCustomerUpdate, `{"id":1001,"email":"guest@example.com","state":"enabled"}`))
	require.NoError(t, err)
	assert.Len(t, out.Transitions, 1)
}

func TestProcessIgnoresUnknownTopicsAndCustomers(t *testing.T) {
	store := newFakeStore()
	p := newTestProcessor(store, nil, nil)

	out, err := p.Process(context.Background(), event("products/update", `{"id":1}`))
	require.NoError(t, err)
	assert.True(t, out.Ignored)

	out, err = p.Process(context.Background(), event(TopicCustomerLogin, `{"id":1,"email":"stranger@example.com"}`))
	require.NoError(t, err)
	assert.True(t, out.Ignored)
	assert.Empty(t, out.Failed)
}

func TestProcessReportsFailures(t *testing.T) {
	store := newFakeStore()
	store.addCustomer(Customer{Email: "guest@example.com"},
		invitee(MembershipKey("sr-1"), `{"showroom_id":"sr-1","status":"invited"}`),
	)
	store.setErr = func(Metafield) error { return errors.New("shopify: 429") }
	p := newTestProcessor(store, nil, nil)

	out, err := p.Process(context.Background(), event(TopicCustomerLogin, `{"id":1001,"email":"guest@example.com"}`))
	require.NoError(t, err)
	assert.Empty(t, out.Transitions)
	assert.NotEmpty(t, out.Failed)

	out, err = p.Process(context.Background(), event(TopicCustomerLogin, `{not json`))
	require.NoError(t, err)
	assert.NotEmpty(t, out.Failed)
}

func TestApplySkipsSignatureCheck(t *testing.T) {
	store := newFakeStore()
	cust := store.addCustomer(Customer{Email: "guest@example.com"},
		invitee(MembershipKey("sr-1"), `{"showroom_id":"sr-1","status":"invited"}`),
	)
	p := NewLifecycleProcessor(store, newTestReconciler(store), nil, nil, nil, LifecycleOptions{Now: fixedNow})

	out := p.Apply(context.Background(), Event{Topic: "Customers/Create", Body: []byte(`{"id":1,"email":"guest@example.com"}`)})
	require.Len(t, out.Transitions, 1)
	assert.Equal(t, TopicCustomerCreate, out.Topic)

	m, ok := Reconstruct(store.metafields[cust.ID]).Membership("sr-1")
	require.True(t, ok)
	assert.Equal(t, StatusJoined, m.Status)
}
