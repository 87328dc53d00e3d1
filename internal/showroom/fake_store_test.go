package showroom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

type fakeStore struct {
	mu         sync.Mutex
	customers  map[int64]*Customer
	metafields map[int64][]Metafield
	nextID     int64
	seq        int

	findErr     map[string]error
	listErr     error
	createErr   error
	updateErr   error
	sendErr     error
	activateErr error
	setErr      func(Metafield) error
	failDelete  map[int64]bool
	setDelay    time.Duration
	inFlight    int
	maxInFlight int
	setCalls    []Metafield
	updates     []CustomerUpdate
	deleteCalls []int64
	creates     []NewCustomer
	sendInvites []int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		customers:  map[int64]*Customer{},
		metafields: map[int64][]Metafield{},
		nextID:     1000,
		findErr:    map[string]error{},
	}
}

func (f *fakeStore) addCustomer(c Customer, mfs ...Metafield) *Customer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == 0 {
		f.nextID++
		c.ID = f.nextID
	}
	f.customers[c.ID] = &c
	for _, mf := range mfs {
		f.putLocked(c.ID, mf)
	}
	return &c
}

func (f *fakeStore) putLocked(customerID int64, mf Metafield) Metafield {
	f.seq++
	if mf.UpdatedAt == "" {
		mf.UpdatedAt = fmt.Sprintf("2024-01-01T00:00:%06dZ", f.seq)
	}
	list := f.metafields[customerID]
	for i := range list {
		if list[i].Namespace == mf.Namespace && list[i].Key == mf.Key {
			mf.ID = list[i].ID
			mf.CreatedAt = list[i].CreatedAt
			list[i] = mf
			return mf
		}
	}
	f.nextID++
	mf.ID = f.nextID
	if mf.CreatedAt == "" {
		mf.CreatedAt = mf.UpdatedAt
	}
	f.metafields[customerID] = append(list, mf)
	return mf
}

func (f *fakeStore) value(customerID int64, namespace, key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, mf := range f.metafields[customerID] {
		if mf.Namespace == namespace && mf.Key == key {
			return mf.Value, true
		}
	}
	return "", false
}

func (f *fakeStore) customer(id int64) Customer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.customers[id]
}

func (f *fakeStore) FindCustomerByEmail(_ context.Context, email string) (*Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.findErr[email]; err != nil {
		return nil, err
	}
	for _, c := range f.customers {
		if c.Email == email {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateCustomer(_ context.Context, in NewCustomer) (*Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.creates = append(f.creates, in)
	f.nextID++
	c := &Customer{
		ID:        f.nextID,
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Note:      in.Note,
		State:     in.State,
		Tags:      strings.Join(in.Tags, ", "),
	}
	if c.State == "" {
		c.State = AccountDisabled
	}
	f.customers[c.ID] = c
	cp := *c
	return &cp, nil
}

func (f *fakeStore) UpdateCustomer(_ context.Context, id int64, upd CustomerUpdate) (*Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, upd)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	c, ok := f.customers[id]
	if !ok {
		return nil, errors.New("customer not found")
	}
	if upd.FirstName != nil {
		c.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		c.LastName = *upd.LastName
	}
	if upd.Tags != nil {
		c.Tags = *upd.Tags
	}
	if upd.Note != nil {
		c.Note = *upd.Note
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) ListMetafields(_ context.Context, customerID int64) ([]Metafield, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]Metafield, len(f.metafields[customerID]))
	copy(out, f.metafields[customerID])
	return out, nil
}

func (f *fakeStore) SetMetafield(_ context.Context, customerID int64, mf Metafield) (*Metafield, error) {
	f.mu.Lock()
	f.setCalls = append(f.setCalls, mf)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	delay, setErr := f.setDelay, f.setErr
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if setErr != nil {
		if err := setErr(mf); err != nil {
			return nil, err
		}
	}
	stored := f.putLocked(customerID, mf)
	return &stored, nil
}

func (f *fakeStore) DeleteMetafield(_ context.Context, customerID, metafieldID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls = append(f.deleteCalls, metafieldID)
	if f.failDelete[metafieldID] {
		return errors.New("shopify: 500")
	}
	list := f.metafields[customerID]
	for i := range list {
		if list[i].ID == metafieldID {
			f.metafields[customerID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return errors.New("metafield not found")
}

func (f *fakeStore) SendInvite(_ context.Context, customerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendInvites = append(f.sendInvites, customerID)
	return f.sendErr
}

func (f *fakeStore) ActivationURL(_ context.Context, customerID int64) (string, error) {
	if f.activateErr != nil {
		return "", f.activateErr
	}
	return fmt.Sprintf("https://shop.example/account/activate/%d/token", customerID), nil
}

func (f *fakeStore) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.setCalls) + len(f.deleteCalls) + len(f.updates) + len(f.creates)
}

type fakeMarketer struct {
	mu     sync.Mutex
	err    error
	events []MarketingEvent
}

func (m *fakeMarketer) Track(_ context.Context, ev MarketingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return m.err
}

type fakeProducts map[string][]string

func (f fakeProducts) ProductIDs(_ context.Context, showroomID string) ([]string, error) {
	if ids, ok := f[showroomID]; ok {
		return ids, nil
	}
	return nil, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *fakeNotifier) Notify(_ context.Context, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return nil
}

func fixedNow() time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func invitee(key, value string) Metafield {
	return Metafield{Namespace: NamespaceInvitee, Key: key, Value: value, Type: "single_line_text_field"}
}

func owner(key, value string) Metafield {
	return Metafield{Namespace: NamespaceOwner, Key: key, Value: value, Type: "json"}
}
