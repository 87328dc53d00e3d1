package showroom

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/elevenby-design/bridal-showroom-webhooks/internal/errors"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/logger"
)

const DefaultInviteMetric = "Bridal Party Invited"

type InviteRequest struct {
	Email        string
	FirstName    string
	LastName     string
	ShowroomID   string
	BrideName    string
	WeddingDate  string
	Roles        []string
	CustomerNote string
}

func (r InviteRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" || strings.TrimSpace(r.FirstName) == "" || strings.TrimSpace(r.LastName) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "Email, firstName, and lastName are required")
	}
	return nil
}

type InviteResult struct {
	Customer   *Customer
	Created    bool
	EmailSent  bool
	Membership Membership
	Failed     []FieldError
}

type InviterOptions struct {
	Policy  CustomerPolicy
	Metric  string
	SiteURL string
	Now     func() time.Time
}

// Inviter creates (or reuses) a customer for a bridal party member, records
// the invited membership and sends the activation email.
type Inviter struct {
	rec      *Reconciler
	store    Store
	marketer Marketer
	log      *logger.Logger
	policy   CustomerPolicy
	metric   string
	siteURL  string
	now      func() time.Time
}

// NewInviter accepts a nil marketer; Shopify's own invite email is used then.
func NewInviter(rec *Reconciler, store Store, marketer Marketer, log *logger.Logger, opts InviterOptions) *Inviter {
	if opts.Policy == "" {
		opts.Policy = PolicyCreateIfAbsent
	}
	if opts.Metric == "" {
		opts.Metric = DefaultInviteMetric
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Inviter{
		rec:      rec,
		store:    store,
		marketer: marketer,
		log:      log,
		policy:   opts.Policy,
		metric:   opts.Metric,
		siteURL:  strings.TrimRight(opts.SiteURL, "/"),
		now:      opts.Now,
	}
}

func (i *Inviter) Invite(ctx context.Context, req InviteRequest) (*InviteResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Roles = cleanList(req.Roles)
	ctx = i.log.WithEmail(ctx, req.Email)

	cust, created, err := i.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	ctx = i.log.WithCustomerID(ctx, cust.ID)

	inviteDate := i.now().UTC().Format(time.RFC3339)
	m := Membership{
		ShowroomID:  strings.TrimSpace(req.ShowroomID),
		Role:        RoleInvited,
		BrideName:   req.BrideName,
		WeddingDate: req.WeddingDate,
		Roles:       req.Roles,
		Status:      StatusInvited,
		InviteDate:  inviteDate,
	}

	note := ""
	if !created {
		note = req.CustomerNote
	}
	up, err := i.rec.UpsertMembership(ctx, UpsertRequest{
		Email:     req.Email,
		Namespace: NamespaceInvitee,
		Fields:    inviteFields(m),
		Customer:  cust,
		Note:      note,
	})
	if err != nil {
		return nil, err
	}
	res := &InviteResult{Customer: up.Customer, Created: created, Failed: up.Failed, Membership: m}
	if m.ShowroomID == "" {
		m.ShowroomID = UnknownShowroomID
	}
	if stored, ok := up.State.Membership(m.ShowroomID); ok {
		res.Membership = stored
	}

	if !res.Customer.Enabled() {
		url, err := i.store.ActivationURL(ctx, cust.ID)
		if err != nil {
			i.log.Warn(ctx, "activation url unavailable: "+err.Error())
		} else {
			res.Customer.AccountActivationURL = url
		}
	}

	res.EmailSent = i.sendInviteEvent(ctx, req, res.Customer, inviteDate)
	if !res.EmailSent && !res.Customer.Enabled() {
		if err := i.store.SendInvite(ctx, cust.ID); err != nil {
			i.log.Error(ctx, "shopify account invite failed", err)
		}
	}
	return res, nil
}

func (i *Inviter) resolve(ctx context.Context, req InviteRequest) (*Customer, bool, error) {
	cust, err := i.store.FindCustomerByEmail(ctx, req.Email)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "search customer")
	}
	if cust != nil {
		return cust, false, nil
	}
	if i.policy == PolicyRequireExisting {
		return nil, false, pkgerrors.New(pkgerrors.CodeNotFound, "Customer not found")
	}
	cust, err = i.store.CreateCustomer(ctx, NewCustomer{
		Email:     req.Email,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Note:      req.CustomerNote,
		Tags:      InviteeTags(req.Roles),
		State:     AccountDisabled,
	})
	if err != nil {
		// Reported as a bad request so the storefront shows Shopify's reason.
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "create customer")
	}
	i.log.Info(i.log.WithCustomerID(ctx, cust.ID), "invited customer created")
	return cust, true, nil
}

// inviteFields writes the membership blob when the showroom is known and
// always mirrors it into the flat keys.
func inviteFields(m Membership) map[string]string {
	fields := map[string]string{
		keyStatus:     string(m.Status),
		keyInviteDate: m.InviteDate,
	}
	if m.ShowroomID != "" {
		fields[keyShowroomID] = m.ShowroomID
		if b, err := json.Marshal(recordFromMembership(m)); err == nil {
			fields[MembershipKey(m.ShowroomID)] = string(b)
		}
	}
	if len(m.Roles) > 0 {
		if b, err := json.Marshal(m.Roles); err == nil {
			fields[keyRoles] = string(b)
		}
	}
	if m.BrideName != "" {
		fields[keyBrideName] = m.BrideName
	}
	if m.WeddingDate != "" {
		fields[keyWeddingDate] = m.WeddingDate
	}
	return fields
}

func (i *Inviter) sendInviteEvent(ctx context.Context, req InviteRequest, cust *Customer, inviteDate string) bool {
	if i.marketer == nil {
		i.log.Info(ctx, "marketing client not configured, skipping invite event")
		return false
	}
	ev := MarketingEvent{
		Metric:    i.metric,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		ProfileProperties: map[string]any{
			"Bridal Party Member": true,
			"Showroom ID":         req.ShowroomID,
			"Bride Name":          req.BrideName,
			"Wedding Date":        req.WeddingDate,
			"Invite Date":         inviteDate,
			"Account Status":      string(StatusInvited),
		},
		Properties: map[string]any{
			"activation_url": cust.AccountActivationURL,
			"bride_name":     req.BrideName,
			"wedding_date":   req.WeddingDate,
			"showroom_url":   i.siteURL + "/pages/showroom",
			"invite_date":    inviteDate,
			"roles":          strings.Join(req.Roles, ", "),
			"showroom_id":    req.ShowroomID,
		},
		UniqueID: fmt.Sprintf("invite-%d-%s-%s", cust.ID, req.ShowroomID, inviteDate),
		Time:     i.now(),
	}
	if err := i.marketer.Track(ctx, ev); err != nil {
		i.log.Error(ctx, "invite event failed", err)
		return false
	}
	return true
}
