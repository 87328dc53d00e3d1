package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/elevenby-design/bridal-showroom-webhooks/internal/errors"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/shopify"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/showroom"
)

type fakeLifecycle struct {
	verifyErr error
	out       *showroom.Outcome
	events    []showroom.Event
}

func (f *fakeLifecycle) Verify([]byte, string) error { return f.verifyErr }

func (f *fakeLifecycle) Process(_ context.Context, ev showroom.Event) (*showroom.Outcome, error) {
	f.events = append(f.events, ev)
	return f.out, nil
}

type fakeLedger struct {
	claimed  map[string]bool
	claimErr error
	released []string
	recorded []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{claimed: map[string]bool{}}
}

func (f *fakeLedger) Claim(_ context.Context, id, _, _ string) (bool, error) {
	if f.claimErr != nil {
		return false, f.claimErr
	}
	if f.claimed[id] {
		return true, nil
	}
	f.claimed[id] = true
	return false, nil
}

func (f *fakeLedger) Release(_ context.Context, id string) error {
	f.released = append(f.released, id)
	delete(f.claimed, id)
	return nil
}

func (f *fakeLedger) RecordLastEvent(_ context.Context, email, topic, _ string, _ time.Time) error {
	f.recorded = append(f.recorded, email+" "+topic)
	return nil
}

func webhookReq(id string) Request {
	return Request{
		HTTPMethod: http.MethodPost,
		Body:       `{"id":1,"email":"guest@example.com"}`,
		Headers: map[string]string{
			"x-shopify-hmac-sha256": "sig",
			"x-shopify-topic":       "customers/create",
			"x-shopify-webhook-id":  id,
		},
	}
}

func TestStatusUpdaterRejectsBadSignature(t *testing.T) {
	lc := &fakeLifecycle{verifyErr: pkgerrors.New(pkgerrors.CodeUnauthorized, "Unauthorized")}
	ledger := newFakeLedger()
	resp, err := NewStatusUpdater(testBase("status-updater"), lc, ledger)(context.Background(), webhookReq("wh-1"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Unauthorized", decode(t, resp)["error"])
	assert.Empty(t, lc.events)
	assert.Empty(t, ledger.claimed)
}

func TestStatusUpdaterSkipsDuplicates(t *testing.T) {
	lc := &fakeLifecycle{out: &showroom.Outcome{Topic: "customers/create", Email: "guest@example.com"}}
	ledger := newFakeLedger()
	h := NewStatusUpdater(testBase("status-updater"), lc, ledger)

	for i := 0; i < 2; i++ {
		resp, err := h(context.Background(), webhookReq("wh-1"))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	require.Len(t, lc.events, 1)
	assert.Equal(t, "customers/create", lc.events[0].Topic)
	assert.Equal(t, "wh-1", lc.events[0].WebhookID)
	assert.Equal(t, []string{"guest@example.com customers/create"}, ledger.recorded)
}

func TestStatusUpdaterReleasesFailedDeliveries(t *testing.T) {
	lc := &fakeLifecycle{out: &showroom.Outcome{Topic: "orders/create", Email: "guest@example.com", Failed: []string{"write failed"}}}
	ledger := newFakeLedger()
	h := NewStatusUpdater(testBase("status-updater"), lc, ledger)

	resp, err := h(context.Background(), webhookReq("wh-2"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true,"topic":"orders/create"}`, resp.Body)
	assert.Equal(t, []string{"wh-2"}, ledger.released)

	_, err = h(context.Background(), webhookReq("wh-2"))
	require.NoError(t, err)
	assert.Len(t, lc.events, 2)
}

func TestStatusUpdaterProcessesWhenClaimFails(t *testing.T) {
	lc := &fakeLifecycle{out: &showroom.Outcome{Topic: "customers/create", Ignored: true}}
	ledger := newFakeLedger()
	ledger.claimErr = errors.New("throttled")

	resp, err := NewStatusUpdater(testBase("status-updater"), lc, ledger)(context.Background(), webhookReq("wh-3"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, lc.events, 1)
	assert.Empty(t, ledger.recorded)
}

func TestStatusUpdaterWithoutLedger(t *testing.T) {
	lc := &fakeLifecycle{out: &showroom.Outcome{Topic: "customers/create"}}
	resp, err := NewStatusUpdater(testBase("status-updater"), lc, nil)(context.Background(), webhookReq(""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, lc.events, 1)
}

type fakeDirectory struct {
	cust      *showroom.Customer
	orders    []shopify.Order
	gotSince  string
	gotCustID int64
}

func (f *fakeDirectory) FindCustomerByEmail(context.Context, string) (*showroom.Customer, error) {
	return f.cust, nil
}

func (f *fakeDirectory) ListOrders(_ context.Context, id int64, since string) ([]shopify.Order, error) {
	f.gotCustID, f.gotSince = id, since
	return f.orders, nil
}

func TestCustomerLookup(t *testing.T) {
	dir := &fakeDirectory{
		cust:   &showroom.Customer{ID: 9, Email: "guest@example.com", State: "enabled"},
		orders: []shopify.Order{{ID: 5001, Name: "#1001"}},
	}
	h := NewCustomerLookup(testBase("customer-lookup"), dir)

	resp, err := h(context.Background(), post(`{"mode":"search","email":"guest@example.com"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	customers := decode(t, resp)["customers"].([]any)
	require.Len(t, customers, 1)
	assert.Equal(t, "enabled", customers[0].(map[string]any)["state"])

	resp, err = h(context.Background(), post(`{"mode":"orders","customerId":9,"createdAtMin":"2024-06-01T00:00:00Z"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(9), dir.gotCustID)
	assert.Equal(t, "2024-06-01T00:00:00Z", dir.gotSince)

	resp, err = h(context.Background(), post(`{"mode":"orders","customerId":9,"createdAtMin":"yesterday"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = h(context.Background(), post(`{"mode":"refunds"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid mode", decode(t, resp)["error"])
}

func TestCustomerLookupNoMatch(t *testing.T) {
	resp, err := NewCustomerLookup(testBase("customer-lookup"), &fakeDirectory{})(context.Background(), post(`{"mode":"search","email":"x@example.com"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"customers":[]}`, resp.Body)
}
