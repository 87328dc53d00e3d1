package showroom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconstructLegacyFlatRecord(t *testing.T) {
	st := Reconstruct([]Metafield{
		invitee("showroom_id", "sr-1"),
		invitee("status", "joined"),
		invitee("roles", `["bridesmaid","maid-of-honor"]`),
		invitee("bride_name", "Ava Stone"),
		invitee("wedding_date", "2025-05-04"),
		invitee("invite_date", "2024-04-01T10:00:00Z"),
		invitee("joinedDate", "2024-04-02T10:00:00Z"),
		{Namespace: "custom", Key: "status", Value: "purchased"},
	})

	require.Len(t, st.Invited, 1)
	m := st.Invited[0]
	assert.Equal(t, "sr-1", m.ShowroomID)
	assert.Equal(t, RoleInvited, m.Role)
	assert.Equal(t, StatusJoined, m.Status)
	assert.Equal(t, []string{"bridesmaid", "maid-of-honor"}, m.Roles)
	assert.Equal(t, "Ava Stone", m.BrideName)
	assert.Equal(t, "2024-04-02T10:00:00Z", m.JoinedDate)
	assert.True(t, m.Legacy)
	assert.Equal(t, "sr-1", st.LegacyShowroomID)
	assert.Nil(t, st.Owned)
	assert.Empty(t, st.Warnings)
}

func TestReconstructLegacyWithoutShowroomIDIsUnknown(t *testing.T) {
	st := Reconstruct([]Metafield{invitee("status", "invited")})

	require.Len(t, st.Invited, 1)
	assert.Equal(t, UnknownShowroomID, st.Invited[0].ShowroomID)
}

func TestReconstructMalformedRolesKeepsOtherFields(t *testing.T) {
	st := Reconstruct([]Metafield{
		invitee("showroom_id", "sr-1"),
		invitee("roles", `["bridesmaid"`),
		invitee("bride_name", "Ava Stone"),
		invitee("wedding_date", "2025-05-04"),
	})

	require.Len(t, st.Invited, 1)
	m := st.Invited[0]
	assert.Empty(t, m.Roles)
	assert.Equal(t, "Ava Stone", m.BrideName)
	assert.Equal(t, "2025-05-04", m.WeddingDate)
	assert.Equal(t, StatusInvited, m.Status)
	assert.Len(t, st.Warnings, 1)
}

func TestReconstructBlobWithStringRolesKeepsStatus(t *testing.T) {
	st := Reconstruct([]Metafield{
		invitee(MembershipKey("sr-9"), `{"showroom_id":"sr-9","status":"joined","roles":"bridesmaid","bride_name":"Ava Stone","joined_date":"2024-03-01T00:00:00Z"}`),
	})

	require.Len(t, st.Invited, 1)
	m := st.Invited[0]
	assert.Equal(t, "sr-9", m.ShowroomID)
	assert.Equal(t, StatusJoined, m.Status)
	assert.Equal(t, "Ava Stone", m.BrideName)
	assert.Equal(t, "2024-03-01T00:00:00Z", m.JoinedDate)
	assert.Empty(t, m.Roles)
	assert.Len(t, st.Warnings, 1)
}

func TestReconstructBlobRolesArray(t *testing.T) {
	st := Reconstruct([]Metafield{
		invitee(MembershipKey("sr-9"), `{"showroom_id":"sr-9","status":"invited","roles":[" bridesmaid ","usher"]}`),
	})

	require.Len(t, st.Invited, 1)
	assert.Equal(t, []string{"bridesmaid", "usher"}, st.Invited[0].Roles)
	assert.Empty(t, st.Warnings)
}

func TestReconstructRolesAcceptCommaList(t *testing.T) {
	st := Reconstruct([]Metafield{invitee("showroom_id", "sr-1"), invitee("roles", "bridesmaid, wedding-guest")})

	require.Len(t, st.Invited, 1)
	assert.Equal(t, []string{"bridesmaid", "wedding-guest"}, st.Invited[0].Roles)
}

func TestReconstructMultipleMembershipBlobs(t *testing.T) {
	st := Reconstruct([]Metafield{
		invitee(MembershipKey("sr-2"), `{"showroom_id":"sr-2","status":"invited","invite_date":"2024-05-01T00:00:00Z","bride_name":"Mia"}`),
		invitee(MembershipKey("sr-1"), `{"showroom_id":"sr-1","status":"purchased","invite_date":"2024-03-01T00:00:00Z","customer_id":42}`),
	})

	require.Len(t, st.Invited, 2)
	assert.Equal(t, "sr-1", st.Invited[0].ShowroomID)
	assert.Equal(t, StatusPurchased, st.Invited[0].Status)
	assert.Equal(t, int64(42), st.Invited[0].CustomerID)
	assert.Equal(t, "sr-2", st.Invited[1].ShowroomID)

	latest, ok := st.Latest()
	require.True(t, ok)
	assert.Equal(t, "sr-2", latest.ShowroomID)
}

func TestReconstructBlobWinsOverLegacyAndFillsGaps(t *testing.T) {
	st := Reconstruct([]Metafield{
		invitee("showroom_id", "sr-1"),
		invitee("status", "invited"),
		invitee("bride_name", "Ava Stone"),
		invitee("wedding_date", "2025-05-04"),
		invitee(MembershipKey("sr-1"), `{"showroom_id":"sr-1","status":"joined","joined_date":"2024-04-02T00:00:00Z"}`),
	})

	require.Len(t, st.Invited, 1)
	m := st.Invited[0]
	assert.Equal(t, StatusJoined, m.Status)
	assert.Equal(t, "Ava Stone", m.BrideName)
	assert.Equal(t, "2025-05-04", m.WeddingDate)
	assert.False(t, m.Legacy)
}

func TestReconstructBlobIDFromKey(t *testing.T) {
	st := Reconstruct([]Metafield{invitee(MembershipKey("sr-9"), `{"status":"joined"}`)})

	m, ok := st.Membership("sr-9")
	require.True(t, ok)
	assert.Equal(t, StatusJoined, m.Status)
}

func TestReconstructMalformedBlobIsSkipped(t *testing.T) {
	st := Reconstruct([]Metafield{
		invitee(MembershipKey("sr-1"), `{not json`),
		invitee(MembershipKey("sr-2"), `{"status":"invited"}`),
	})

	require.Len(t, st.Invited, 1)
	assert.Equal(t, "sr-2", st.Invited[0].ShowroomID)
	assert.Len(t, st.Warnings, 1)
}

func TestReconstructOwnedShowroom(t *testing.T) {
	st := Reconstruct([]Metafield{
		owner(KeyShowroomData, `{"showroom_id":123,"bride_name":"Ava Stone","wedding_date":"2025-05-04","bridal_party":[{"email":"a@x.com"},{"email":"b@x.com"}]}`),
	})

	require.NotNil(t, st.Owned)
	assert.Equal(t, "123", st.Owned.ShowroomID)
	assert.Equal(t, RoleOwner, st.Owned.Role)
	assert.Equal(t, 2, st.Owned.PartySize)
	assert.Equal(t, []string{"bride"}, st.Owned.Roles)
	assert.Empty(t, st.Invited)
}

func TestReconstructOwnedDoubleEncodedAndAltKey(t *testing.T) {
	st := Reconstruct([]Metafield{
		owner(KeyShowroomDataAlt, `"{\"bride_name\":\"Ava\",\"party_size\":\"4\"}"`),
	})

	require.NotNil(t, st.Owned)
	assert.Equal(t, UnknownShowroomID, st.Owned.ShowroomID)
	assert.Equal(t, 4, st.Owned.PartySize)
}

func TestReconstructOwnedMalformedOrEmpty(t *testing.T) {
	st := Reconstruct([]Metafield{owner(KeyShowroomData, `{broken`)})
	assert.Nil(t, st.Owned)
	assert.Len(t, st.Warnings, 1)

	st = Reconstruct([]Metafield{owner(KeyShowroomData, `{"theme":"blush"}`)})
	assert.Nil(t, st.Owned)
	assert.Empty(t, st.Warnings)
}

func TestReconstructPrefersShowroomDataOverData(t *testing.T) {
	st := Reconstruct([]Metafield{
		owner(KeyShowroomData, `{"showroom_id":"primary","bride_name":"Ava"}`),
		owner(KeyShowroomDataAlt, `{"showroom_id":"secondary","bride_name":"Ava"}`),
	})

	require.NotNil(t, st.Owned)
	assert.Equal(t, "primary", st.Owned.ShowroomID)
}

func TestStatusAdvanceNeverRegresses(t *testing.T) {
	assert.Equal(t, StatusJoined, StatusInvited.Advance(StatusJoined))
	assert.Equal(t, StatusPurchased, StatusPurchased.Advance(StatusInvited))
	assert.Equal(t, StatusPurchased, StatusPurchased.Advance(StatusJoined))
	assert.Equal(t, StatusInvited, Status("").Advance(StatusInvited))
	assert.Equal(t, StatusJoined, StatusJoined.Advance(Status("bogus")))
	assert.Equal(t, Status(""), ParseStatus("bogus"))
	assert.Equal(t, StatusJoined, ParseStatus(" Joined "))
}
