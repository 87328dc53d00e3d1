package showroom

import (
	"fmt"
	"strings"
)

const (
	TagBride          = "showroom-bride"
	TagBridalParty    = "bridal-party"
	TagInvited        = "showroom-invited"
	tagPartySizeFmt   = "showroom-bridal-party-%d"
	roleMaidOfHonor   = "maid-of-honor"
	tagMaidOfHonorAlt = "moh"
)

// TagSet is an ordered, case-insensitively deduplicated set of customer tags.
type TagSet struct {
	items []string
	index map[string]struct{}
}

// ParseTags reads Shopify's comma separated tag string.
func ParseTags(s string) *TagSet {
	t := &TagSet{index: map[string]struct{}{}}
	t.Add(strings.Split(s, ",")...)
	return t
}

// Add appends the tags not already present and reports whether anything changed.
func (t *TagSet) Add(tags ...string) bool {
	changed := false
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, ok := t.index[key]; ok {
			continue
		}
		t.index[key] = struct{}{}
		t.items = append(t.items, tag)
		changed = true
	}
	return changed
}

func (t *TagSet) Remove(tag string) bool {
	key := strings.ToLower(strings.TrimSpace(tag))
	if _, ok := t.index[key]; !ok {
		return false
	}
	delete(t.index, key)
	kept := t.items[:0]
	for _, item := range t.items {
		if strings.ToLower(item) != key {
			kept = append(kept, item)
		}
	}
	t.items = kept
	return true
}

func (t *TagSet) Has(tag string) bool {
	_, ok := t.index[strings.ToLower(strings.TrimSpace(tag))]
	return ok
}

func (t *TagSet) Slice() []string {
	out := make([]string, len(t.items))
	copy(out, t.items)
	return out
}

func (t *TagSet) String() string {
	return strings.Join(t.items, ", ")
}

// OwnerTags marks a bride. The party size tag is only added for a known size.
func OwnerTags(partySize int) []string {
	if partySize <= 0 {
		return []string{TagBride}
	}
	return []string{TagBride, fmt.Sprintf(tagPartySizeFmt, partySize)}
}

func InviteeTags(roles []string) []string {
	tags := []string{TagBridalParty, TagInvited}
	for _, role := range roles {
		tags = append(tags, RoleTags(role)...)
	}
	return tags
}

// RoleTags maps a bridal party role to the tags that mark it. Unknown roles
// are tagged with the role itself.
func RoleTags(role string) []string {
	role = strings.TrimSpace(role)
	switch strings.ToLower(role) {
	case "":
		return nil
	case roleMaidOfHonor:
		return []string{roleMaidOfHonor, tagMaidOfHonorAlt}
	default:
		return []string{role}
	}
}

// DerivedTags are the tags a state implies.
func DerivedTags(st State) []string {
	var tags []string
	if st.Owned != nil {
		tags = append(tags, OwnerTags(st.Owned.PartySize)...)
	}
	for _, m := range st.Invited {
		tags = append(tags, InviteeTags(m.Roles)...)
	}
	return tags
}

// SplitName splits a full name on whitespace: the first token is the first
// name, the rest the last name. ok is false when there is no token.
func SplitName(full string) (first, last string, ok bool) {
	tokens := strings.Fields(full)
	if len(tokens) == 0 {
		return "", "", false
	}
	return tokens[0], strings.Join(tokens[1:], " "), true
}
