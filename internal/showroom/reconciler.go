package showroom

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	pkgerrors "github.com/elevenby-design/bridal-showroom-webhooks/internal/errors"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/logger"
)

const (
	DefaultBatchSize  = 5
	DefaultBatchDelay = 100 * time.Millisecond
)

// CustomerPolicy decides what happens when no customer matches an email.
type CustomerPolicy string

const (
	PolicyCreateIfAbsent  CustomerPolicy = "create_if_absent"
	PolicyRequireExisting CustomerPolicy = "require_existing"
)

func ParseCustomerPolicy(s string) (CustomerPolicy, error) {
	switch CustomerPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyCreateIfAbsent:
		return PolicyCreateIfAbsent, nil
	case PolicyRequireExisting:
		return PolicyRequireExisting, nil
	default:
		return "", fmt.Errorf("unknown customer policy %q", s)
	}
}

type Options struct {
	BatchSize  int
	BatchDelay time.Duration
	Now        func() time.Time
}

// Reconciler merges metafield writes into a customer's existing showroom
// records and keeps tags and profile fields in step with them.
type Reconciler struct {
	store      Store
	log        *logger.Logger
	batchSize  int
	batchDelay time.Duration
	now        func() time.Time
}

func NewReconciler(store Store, log *logger.Logger, opts Options) *Reconciler {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchDelay < 0 {
		opts.BatchDelay = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Reconciler{
		store:      store,
		log:        log,
		batchSize:  opts.BatchSize,
		batchDelay: opts.BatchDelay,
		now:        opts.Now,
	}
}

type UpsertRequest struct {
	Email     string
	Namespace string
	Fields    map[string]string
	Policy    CustomerPolicy
	// NewCustomer supplies the defaults used when the policy creates one.
	NewCustomer NewCustomer
	// Customer skips the email lookup. Shopify's search index lags behind
	// creates, so callers that just created a customer pass it here.
	Customer *Customer
	// Note replaces the customer note when non-empty.
	Note string
}

type FieldError struct {
	Key string `json:"key"`
	Err string `json:"error"`
}

type UpsertResult struct {
	Customer *Customer
	Created  bool
	Written  []string
	Failed   []FieldError
	State    State
}

// ResolveCustomer finds the customer for email, creating it when the policy
// allows. created reports whether a new record was made.
func (r *Reconciler) ResolveCustomer(ctx context.Context, email string, policy CustomerPolicy, defaults NewCustomer) (*Customer, bool, error) {
	cust, err := r.store.FindCustomerByEmail(ctx, email)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "search customer")
	}
	if cust != nil {
		return cust, false, nil
	}
	if policy == PolicyRequireExisting {
		return nil, false, pkgerrors.New(pkgerrors.CodeNotFound, "Customer not found")
	}

	in := defaults
	in.Email = email
	created, err := r.store.CreateCustomer(ctx, in)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "create customer")
	}
	r.log.Info(r.log.WithCustomerID(ctx, created.ID), "customer created")
	return created, true, nil
}

// UpsertMembership writes req.Fields into req.Namespace for the customer.
// Field write failures are reported in the result, not as an error.
func (r *Reconciler) UpsertMembership(ctx context.Context, req UpsertRequest) (*UpsertResult, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" && req.Customer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if req.Namespace == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "namespace is required")
	}

	res := &UpsertResult{Customer: req.Customer}
	if res.Customer == nil {
		cust, created, err := r.ResolveCustomer(ctx, email, req.Policy, req.NewCustomer)
		if err != nil {
			return nil, err
		}
		res.Customer, res.Created = cust, created
	}
	ctx = r.log.WithCustomerID(ctx, res.Customer.ID)

	var existing []Metafield
	if !res.Created {
		mfs, err := r.store.ListMetafields(ctx, res.Customer.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "list metafields")
		}
		existing = mfs
	}

	st := Reconstruct(existing)
	fields := r.guardMonotonic(req.Namespace, req.Fields, st)

	var written []Metafield
	var stale []Metafield
	if req.Namespace == NamespaceInvitee {
		var carry *Metafield
		carry, stale = retargetLegacy(fields, st, existing)
		if carry != nil {
			w, failed := r.writeBatched(ctx, res.Customer.ID, []Metafield{*carry})
			written = append(written, w...)
			res.Failed = append(res.Failed, failed...)
			if len(failed) > 0 {
				// The flat keys keep describing the previous showroom.
				for key := range fields {
					if !strings.HasPrefix(key, membershipKeyPrefix) {
						delete(fields, key)
					}
				}
				stale = nil
			}
		}
	}

	writes := make([]Metafield, 0, len(fields))
	for _, key := range sortedKeys(fields) {
		writes = append(writes, newMetafield(req.Namespace, key, fields[key]))
	}
	w, failed := r.writeBatched(ctx, res.Customer.ID, writes)
	written = append(written, w...)
	res.Failed = append(res.Failed, failed...)
	for _, mf := range written {
		res.Written = append(res.Written, mf.Key)
	}

	remaining := existing
	if len(stale) > 0 {
		remaining = r.deleteStale(ctx, res.Customer.ID, existing, stale, res)
	}

	res.State = Reconstruct(overlay(remaining, written))
	for _, w := range res.State.Warnings {
		r.log.Warn(ctx, "unreadable showroom record: "+w.Error())
	}
	r.applyProfile(ctx, res.Customer, req, fields, res.State)
	return res, nil
}

// guardMonotonic rewrites any status in fields that would move a stored
// membership backwards.
func (r *Reconciler) guardMonotonic(namespace string, fields map[string]string, st State) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	if namespace != NamespaceInvitee {
		return out
	}

	for key, value := range out {
		if !strings.HasPrefix(key, membershipKeyPrefix) {
			continue
		}
		id := strings.TrimPrefix(key, membershipKeyPrefix)
		stored, ok := st.Membership(id)
		if !ok {
			continue
		}
		var incoming membershipRecord
		if err := json.Unmarshal([]byte(value), &incoming); err != nil {
			continue
		}
		merged := mergeRecord(recordFromMembership(stored), incoming)
		if merged.ShowroomID == "" {
			merged.ShowroomID = id
		}
		b, err := json.Marshal(merged)
		if err != nil {
			continue
		}
		out[key] = string(b)
	}

	status, hasStatus := out[keyStatus]
	if !hasStatus || st.LegacyShowroomID == "" {
		return out
	}
	if id, ok := out[keyShowroomID]; ok && strings.TrimSpace(id) != st.LegacyShowroomID {
		// The flat keys are being pointed at another showroom.
		return out
	}
	stored, ok := st.Membership(st.LegacyShowroomID)
	if !ok {
		return out
	}
	if next := stored.Status.Advance(ParseStatus(status)); next != ParseStatus(status) {
		out[keyStatus] = string(next)
	}
	return out
}

// retargetLegacy handles a write that points the flat invitee keys at a
// different showroom. The membership they described is returned as its own
// blob (unless fields already rewrite that blob), together with the flat
// keys the write leaves behind, which would otherwise be read as the new
// showroom's values.
func retargetLegacy(fields map[string]string, st State, existing []Metafield) (*Metafield, []Metafield) {
	id, ok := fields[keyShowroomID]
	if !ok || st.LegacyShowroomID == "" || strings.TrimSpace(id) == st.LegacyShowroomID {
		return nil, nil
	}

	var carry *Metafield
	key := MembershipKey(st.LegacyShowroomID)
	if _, rewritten := fields[key]; !rewritten {
		if prev, ok := st.Membership(st.LegacyShowroomID); ok {
			if b, err := json.Marshal(recordFromMembership(prev)); err == nil {
				mf := newMetafield(NamespaceInvitee, key, string(b))
				carry = &mf
			}
		}
	}

	var stale []Metafield
	for _, mf := range existing {
		if mf.Namespace != NamespaceInvitee || !isLegacyKey(mf.Key) {
			continue
		}
		if _, rewritten := fields[mf.Key]; rewritten {
			continue
		}
		stale = append(stale, mf)
	}
	return carry, stale
}

// deleteStale removes stale from the store and returns existing without the
// metafields that are gone. Failures are added to res.
func (r *Reconciler) deleteStale(ctx context.Context, customerID int64, existing, stale []Metafield, res *UpsertResult) []Metafield {
	removed := make(map[int64]bool, len(stale))
	for _, mf := range stale {
		if err := r.store.DeleteMetafield(ctx, customerID, mf.ID); err != nil {
			r.log.Error(r.log.WithField(ctx, "metafield", mf.Namespace+"."+mf.Key), "stale metafield delete failed", err)
			res.Failed = append(res.Failed, FieldError{Key: mf.Key, Err: err.Error()})
			continue
		}
		removed[mf.ID] = true
	}
	out := make([]Metafield, 0, len(existing))
	for _, mf := range existing {
		if !removed[mf.ID] {
			out = append(out, mf)
		}
	}
	return out
}

func newMetafield(namespace, key, value string) Metafield {
	return Metafield{
		Namespace: namespace,
		Key:       key,
		Value:     value,
		Type:      metafieldType(value),
	}
}

// mergeRecord overlays the non-empty fields of incoming on stored. Status
// only moves forward.
func mergeRecord(stored, incoming membershipRecord) membershipRecord {
	out := stored
	out.Status = ParseStatus(string(stored.Status)).Advance(ParseStatus(string(incoming.Status)))
	if incoming.ShowroomID != "" {
		out.ShowroomID = incoming.ShowroomID
	}
	if len(incoming.Roles) > 0 {
		out.Roles = incoming.Roles
	}
	if incoming.BrideName != "" {
		out.BrideName = incoming.BrideName
	}
	if incoming.WeddingDate != "" {
		out.WeddingDate = incoming.WeddingDate
	}
	if incoming.InviteDate != "" {
		out.InviteDate = incoming.InviteDate
	}
	if incoming.JoinedDate != "" {
		out.JoinedDate = incoming.JoinedDate
	}
	if incoming.PurchasedDate != "" {
		out.PurchasedDate = incoming.PurchasedDate
	}
	if incoming.CustomerID != "" {
		out.CustomerID = incoming.CustomerID
	}
	if incoming.OrderID != "" {
		out.OrderID = incoming.OrderID
	}
	return out
}

// writeBatched issues the writes batchSize at a time with batchDelay between
// batches. One failed write never stops the others.
func (r *Reconciler) writeBatched(ctx context.Context, customerID int64, writes []Metafield) ([]Metafield, []FieldError) {
	var written []Metafield
	var failed []FieldError

	for start := 0; start < len(writes); start += r.batchSize {
		if start > 0 && r.batchDelay > 0 {
			timer := time.NewTimer(r.batchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				for _, mf := range writes[start:] {
					failed = append(failed, FieldError{Key: mf.Key, Err: ctx.Err().Error()})
				}
				return written, failed
			case <-timer.C:
			}
		}

		batch := writes[start:min(start+r.batchSize, len(writes))]
		results := make([]*Metafield, len(batch))
		errs := make([]error, len(batch))

		var g errgroup.Group
		for i, mf := range batch {
			i, mf := i, mf
			g.Go(func() error {
				results[i], errs[i] = r.store.SetMetafield(ctx, customerID, mf)
				return nil
			})
		}
		_ = g.Wait()

		for i, mf := range batch {
			if errs[i] != nil {
				r.log.Error(r.log.WithField(ctx, "metafield", mf.Namespace+"."+mf.Key), "metafield write failed", errs[i])
				failed = append(failed, FieldError{Key: mf.Key, Err: errs[i].Error()})
				continue
			}
			if results[i] != nil {
				written = append(written, *results[i])
			} else {
				written = append(written, mf)
			}
		}
	}
	return written, failed
}

// applyProfile updates tags, name and note. Failures are logged only.
func (r *Reconciler) applyProfile(ctx context.Context, cust *Customer, req UpsertRequest, fields map[string]string, st State) {
	var upd CustomerUpdate

	tags := ParseTags(cust.Tags)
	if tags.Add(DerivedTags(st)...) {
		s := tags.String()
		upd.Tags = &s
	}

	if req.Namespace == NamespaceOwner {
		if first, last, ok := brideNameFrom(fields); ok && (first != cust.FirstName || last != cust.LastName) {
			upd.FirstName, upd.LastName = &first, &last
		}
	}

	if note := strings.TrimSpace(req.Note); note != "" && note != cust.Note {
		upd.Note = &note
	}

	if upd.Empty() {
		return
	}
	updated, err := r.store.UpdateCustomer(ctx, cust.ID, upd)
	if err != nil {
		r.log.Error(ctx, "customer profile update failed", err)
		return
	}
	if updated != nil {
		*cust = *updated
	}
}

func brideNameFrom(fields map[string]string) (string, string, bool) {
	for _, key := range []string{KeyShowroomData, KeyShowroomDataAlt} {
		value, ok := fields[key]
		if !ok {
			continue
		}
		rec, err := parseOwnedRecord(value)
		if err != nil {
			continue
		}
		return SplitName(rec.BrideName)
	}
	return "", "", false
}

type DeleteResult struct {
	CustomerFound bool
	Deleted       int
	Failed        int
}

// DeleteOwnedShowroom removes every bride-side metafield and the bride tag.
// A missing customer is not an error.
func (r *Reconciler) DeleteOwnedShowroom(ctx context.Context, email string) (*DeleteResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	cust, err := r.store.FindCustomerByEmail(ctx, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "search customer")
	}
	res := &DeleteResult{}
	if cust == nil {
		return res, nil
	}
	res.CustomerFound = true
	ctx = r.log.WithCustomerID(ctx, cust.ID)

	mfs, err := r.store.ListMetafields(ctx, cust.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "list metafields")
	}
	for _, mf := range mfs {
		if mf.Namespace != NamespaceOwner {
			continue
		}
		res.Deleted++
		if err := r.store.DeleteMetafield(ctx, cust.ID, mf.ID); err != nil {
			res.Failed++
			r.log.Error(r.log.WithField(ctx, "metafield", mf.Namespace+"."+mf.Key), "metafield delete failed", err)
		}
	}

	tags := ParseTags(cust.Tags)
	if tags.Remove(TagBride) {
		s := tags.String()
		if _, err := r.store.UpdateCustomer(ctx, cust.ID, CustomerUpdate{Tags: &s}); err != nil {
			r.log.Error(ctx, "bride tag removal failed", err)
		}
	}
	return res, nil
}

// overlay replaces existing metafields with written ones of the same
// namespace and key.
func overlay(existing, written []Metafield) []Metafield {
	key := func(mf Metafield) string { return mf.Namespace + "." + mf.Key }
	replaced := make(map[string]bool, len(written))
	for _, mf := range written {
		replaced[key(mf)] = true
	}
	out := make([]Metafield, 0, len(existing)+len(written))
	for _, mf := range existing {
		if !replaced[key(mf)] {
			out = append(out, mf)
		}
	}
	return append(out, written...)
}

// metafieldType picks json for objects and arrays, text otherwise.
func metafieldType(value string) string {
	v := strings.TrimSpace(value)
	if (strings.HasPrefix(v, "{") || strings.HasPrefix(v, "[")) && json.Valid([]byte(v)) {
		return "json"
	}
	if strings.ContainsAny(value, "\n\r") {
		return "multi_line_text_field"
	}
	return "single_line_text_field"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
