package showroom

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// State is everything a customer's metafields say about showrooms.
type State struct {
	Owned   *Membership
	Invited []Membership

	// LegacyShowroomID is the showroom named by the flat invitee keys, if any.
	LegacyShowroomID string
	// Warnings lists records that could not be parsed. They never fail a read.
	Warnings []error
}

// Membership returns the invited membership for showroomID.
func (s State) Membership(showroomID string) (Membership, bool) {
	for _, m := range s.Invited {
		if m.ShowroomID == showroomID {
			return m, true
		}
	}
	return Membership{}, false
}

// Latest returns the most recently invited membership.
func (s State) Latest() (Membership, bool) {
	if len(s.Invited) == 0 {
		return Membership{}, false
	}
	return s.Invited[len(s.Invited)-1], true
}

// All returns the owned membership (if any) followed by invited ones.
func (s State) All() []Membership {
	out := make([]Membership, 0, len(s.Invited)+1)
	if s.Owned != nil {
		out = append(out, *s.Owned)
	}
	return append(out, s.Invited...)
}

type legacyRecord struct {
	seen bool
	m    Membership
}

func (l *legacyRecord) apply(mf Metafield, warn func(error)) {
	value := strings.TrimSpace(mf.Value)
	switch mf.Key {
	case keyShowroomID:
		l.m.ShowroomID = value
		l.m.CreatedDate = mf.CreatedAt
		l.m.UpdatedDate = mf.UpdatedAt
	case keyStatus:
		l.m.Status = ParseStatus(value)
	case keyRoles:
		roles, err := parseRoles(value)
		if err != nil {
			warn(fmt.Errorf("%s.%s: %w", mf.Namespace, mf.Key, err))
			return
		}
		l.m.Roles = roles
	case keyBrideName:
		l.m.BrideName = value
	case keyWeddingDate:
		l.m.WeddingDate = value
	case keyInviteDate:
		l.m.InviteDate = value
	case keyJoinedDate, "joinedDate":
		l.m.JoinedDate = value
	case keyPurchasedDate, "purchasedDate":
		l.m.PurchasedDate = value
	case keyCustomerID, "customerId":
		var id flexString
		if err := json.Unmarshal([]byte(value), &id); err != nil {
			id = flexString(value)
		}
		l.m.CustomerID = parseID(string(id))
	case keyOrderID, "orderId":
		l.m.OrderID = value
	default:
		return
	}
	l.seen = true
}

// isLegacyKey reports whether key is one of the flat invitee keys.
func isLegacyKey(key string) bool {
	switch key {
	case keyShowroomID, keyStatus, keyRoles, keyBrideName, keyWeddingDate, keyInviteDate,
		keyJoinedDate, "joinedDate", keyPurchasedDate, "purchasedDate",
		keyCustomerID, "customerId", keyOrderID, "orderId":
		return true
	}
	return false
}

// Reconstruct derives the showroom state from a customer's metafields.
// Metafields from other namespaces are ignored.
func Reconstruct(metafields []Metafield) State {
	var st State
	warn := func(err error) { st.Warnings = append(st.Warnings, err) }

	sorted := make([]Metafield, len(metafields))
	copy(sorted, metafields)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].UpdatedAt != sorted[j].UpdatedAt {
			return sorted[i].UpdatedAt < sorted[j].UpdatedAt
		}
		return sorted[i].ID < sorted[j].ID
	})

	var owned *Metafield
	var legacy legacyRecord
	blobs := map[string]Membership{}

	for i := range sorted {
		mf := sorted[i]
		switch mf.Namespace {
		case NamespaceOwner:
			switch mf.Key {
			case KeyShowroomData:
				owned = &sorted[i]
			case KeyShowroomDataAlt:
				if owned == nil || owned.Key == KeyShowroomDataAlt {
					owned = &sorted[i]
				}
			}
		case NamespaceInvitee:
			if !strings.HasPrefix(mf.Key, membershipKeyPrefix) {
				legacy.apply(mf, warn)
				continue
			}
			m, err := parseMembershipBlob(mf, warn)
			if err != nil {
				warn(err)
				continue
			}
			blobs[m.ShowroomID] = m
		}
	}

	if owned != nil {
		if m, err := ownedMembership(*owned); err != nil {
			warn(err)
		} else if m != nil {
			st.Owned = m
		}
	}

	if legacy.seen {
		lm := legacy.m
		lm.Role = RoleInvited
		lm.Legacy = true
		if lm.ShowroomID == "" {
			lm.ShowroomID = UnknownShowroomID
		}
		if lm.Status == "" {
			lm.Status = StatusInvited
		}
		st.LegacyShowroomID = lm.ShowroomID
		if blob, ok := blobs[lm.ShowroomID]; ok {
			blobs[lm.ShowroomID] = fillFrom(blob, lm)
		} else {
			blobs[lm.ShowroomID] = lm
		}
	}

	for _, m := range blobs {
		st.Invited = append(st.Invited, m)
	}
	sort.SliceStable(st.Invited, func(i, j int) bool {
		a, b := st.Invited[i], st.Invited[j]
		if a.InviteDate != b.InviteDate {
			return a.InviteDate < b.InviteDate
		}
		return a.ShowroomID < b.ShowroomID
	})
	return st
}

// parseMembershipBlob decodes one membership blob. Unreadable roles are
// reported through warn and leave the rest of the record intact.
func parseMembershipBlob(mf Metafield, warn func(error)) (Membership, error) {
	var raw struct {
		membershipRecord
		Roles json.RawMessage `json:"roles"`
	}
	if err := json.Unmarshal([]byte(mf.Value), &raw); err != nil {
		return Membership{}, fmt.Errorf("%s.%s: %w", mf.Namespace, mf.Key, err)
	}
	rec := raw.membershipRecord
	if roles := strings.TrimSpace(string(raw.Roles)); roles != "" && roles != "null" {
		parsed, err := parseRoles(roles)
		if err != nil {
			warn(fmt.Errorf("%s.%s: %w", mf.Namespace, mf.Key, err))
		}
		rec.Roles = parsed
	}
	if rec.ShowroomID == "" {
		rec.ShowroomID = strings.TrimPrefix(mf.Key, membershipKeyPrefix)
	}
	m := rec.membership()
	if m.Status == "" {
		m.Status = StatusInvited
	}
	m.CreatedDate = mf.CreatedAt
	m.UpdatedDate = mf.UpdatedAt
	return m, nil
}

func ownedMembership(mf Metafield) (*Membership, error) {
	rec, err := parseOwnedRecord(mf.Value)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", mf.Namespace, mf.Key, err)
	}
	id := rec.showroomID()
	if id == "" && rec.BrideName == "" && rec.WeddingDate == "" {
		return nil, nil
	}
	if id == "" {
		id = UnknownShowroomID
	}
	return &Membership{
		ShowroomID:  id,
		Role:        RoleOwner,
		BrideName:   rec.BrideName,
		WeddingDate: rec.WeddingDate,
		Roles:       []string{"bride"},
		PartySize:   rec.partySize(),
		CreatedDate: mf.CreatedAt,
		UpdatedDate: mf.UpdatedAt,
	}, nil
}

// fillFrom completes blob with whatever legacy knows that blob does not.
func fillFrom(blob, legacy Membership) Membership {
	out := blob
	out.Status = blob.Status.Advance(legacy.Status)
	if out.BrideName == "" {
		out.BrideName = legacy.BrideName
	}
	if out.WeddingDate == "" {
		out.WeddingDate = legacy.WeddingDate
	}
	if len(out.Roles) == 0 {
		out.Roles = legacy.Roles
	}
	if out.InviteDate == "" {
		out.InviteDate = legacy.InviteDate
	}
	if out.JoinedDate == "" {
		out.JoinedDate = legacy.JoinedDate
	}
	if out.PurchasedDate == "" {
		out.PurchasedDate = legacy.PurchasedDate
	}
	if out.OrderID == "" {
		out.OrderID = legacy.OrderID
	}
	if out.CustomerID == 0 {
		out.CustomerID = legacy.CustomerID
	}
	if out.CreatedDate == "" {
		out.CreatedDate = legacy.CreatedDate
	}
	return out
}

// parseRoles accepts a JSON array of strings or a comma separated list.
func parseRoles(value string) ([]string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if strings.HasPrefix(value, "[") {
		var roles []string
		if err := json.Unmarshal([]byte(value), &roles); err != nil {
			return nil, fmt.Errorf("parse roles: %w", err)
		}
		return cleanList(roles), nil
	}
	if strings.HasPrefix(value, "{") || strings.HasPrefix(value, "\"") {
		return nil, fmt.Errorf("parse roles: unexpected value %q", value)
	}
	return cleanList(strings.Split(value, ",")), nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
