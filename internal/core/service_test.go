package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/dominion/internal/claim"
	"github.com/talgya/dominion/internal/event"
	"github.com/talgya/dominion/internal/faction"
	"github.com/talgya/dominion/internal/relation"
	"github.com/talgya/dominion/internal/siege"
	"github.com/talgya/dominion/internal/teleport"
)

// testWorld satisfies the host-engine interfaces with nobody online.
type testWorld struct{}

func (testWorld) PlayerInChunk(faction.PlayerID, string, claim.Coord) bool   { return false }
func (testWorld) FactionInChunk(faction.FactionID, string, claim.Coord) bool { return false }
func (testWorld) Position(faction.PlayerID) (teleport.Position, bool) {
	return teleport.Position{}, false
}
func (testWorld) Teleport(faction.PlayerID, string, claim.Coord) {}

type harness struct {
	svc  *Service
	ring *event.RingSink
	now  time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ring: event.NewRingSink(100),
		now:  time.Unix(1_700_000_000, 0),
	}
	w := testWorld{}
	h.svc = NewService(DefaultConfig(), siege.DefaultConfig(), teleport.DefaultConfig(), nil, Deps{
		Presence: w,
		Locator:  w,
		Mover:    w,
		Sink:     h.ring,
	})
	h.svc.SetClock(func() time.Time { return h.now })
	return h
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

func TestCreateInviteAccept(t *testing.T) {
	h := newHarness(t)

	f, err := h.svc.CreateFaction("Iron Pact", "alice")
	require.NoError(t, err)

	require.NoError(t, h.svc.Invite("alice", "bob"))
	require.NoError(t, h.svc.AcceptInvite("bob"))

	joined := h.svc.FactionOf("bob")
	require.NotNil(t, joined)
	assert.Equal(t, f.ID, joined.ID)
	role, _ := joined.RoleOf("bob")
	assert.Equal(t, faction.RoleMember, role)

	// Members lack manage_members by default.
	assert.ErrorIs(t, h.svc.Invite("bob", "carol"), ErrNoPermission)

	// A player already in a faction cannot be invited.
	assert.ErrorIs(t, h.svc.Invite("alice", "bob"), ErrTargetInFaction)
}

func TestInviteExpires(t *testing.T) {
	h := newHarness(t)
	h.svc.CreateFaction("Iron Pact", "alice")

	require.NoError(t, h.svc.Invite("alice", "bob"))
	h.advance(6 * time.Minute) // past the 5m TTL
	assert.ErrorIs(t, h.svc.AcceptInvite("bob"), ErrNoInvite)
}

func TestAcceptWithoutInvite(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.svc.AcceptInvite("nobody"), ErrNoInvite)
}

func TestClaimCapacityFormula(t *testing.T) {
	h := newHarness(t)
	f, _ := h.svc.CreateFaction("Iron Pact", "alice")

	// base 6 + 4 per member, level bonus every 5 members.
	assert.Equal(t, 10, h.svc.ClaimCapacity(f.ID))

	for _, p := range []faction.PlayerID{"b", "c", "d", "e"} {
		require.NoError(t, h.svc.Registry.AddMember(f.ID, p, faction.RoleMember))
	}
	// 5 members: 6 + 20 + 10 = 36.
	assert.Equal(t, 36, h.svc.ClaimCapacity(f.ID))

	assert.Equal(t, 0, h.svc.ClaimCapacity("missing"))
}

func TestClaimCooldownAndLimit(t *testing.T) {
	h := newHarness(t)
	h.svc.CreateFaction("Iron Pact", "alice")

	require.NoError(t, h.svc.Claim("alice", claim.Coord{X: 0, Z: 0}))
	assert.ErrorIs(t, h.svc.Claim("alice", claim.Coord{X: 1, Z: 0}), ErrCooldownActive)

	// Owner cooldown is half the 10s base. Claim up to the capacity of 10.
	for i := 1; i < 10; i++ {
		h.advance(5 * time.Second)
		require.NoError(t, h.svc.Claim("alice", claim.Coord{X: i, Z: 0}))
	}
	h.advance(5 * time.Second)
	assert.ErrorIs(t, h.svc.Claim("alice", claim.Coord{X: 10, Z: 0}), ErrClaimLimit)
}

func TestClaimTakenCoordinate(t *testing.T) {
	h := newHarness(t)
	h.svc.CreateFaction("A", "alice")
	h.svc.CreateFaction("B", "bob")

	require.NoError(t, h.svc.Claim("alice", claim.Coord{X: 0, Z: 0}))
	assert.ErrorIs(t, h.svc.Claim("bob", claim.Coord{X: 0, Z: 0}), ErrAlreadyClaimed)

	assert.ErrorIs(t, h.svc.Claim("stranger", claim.Coord{X: 1, Z: 0}), ErrNoFaction)
}

func TestRejectedClaimDoesNotBurnCooldown(t *testing.T) {
	h := newHarness(t)
	h.svc.CreateFaction("A", "alice")
	h.svc.CreateFaction("B", "bob")
	require.NoError(t, h.svc.Claim("alice", claim.Coord{X: 0, Z: 0}))

	// Bob's attempt on the taken chunk fails, and the very next valid claim
	// must go through without waiting out a cooldown.
	assert.ErrorIs(t, h.svc.Claim("bob", claim.Coord{X: 0, Z: 0}), ErrAlreadyClaimed)
	require.NoError(t, h.svc.Claim("bob", claim.Coord{X: 1, Z: 0}))

	// Same for unclaim: a rejected release leaves the cooldown untouched.
	h.advance(time.Minute)
	assert.ErrorIs(t, h.svc.Unclaim("bob", claim.Coord{X: 5, Z: 5}), ErrNotYourClaim)
	require.NoError(t, h.svc.Unclaim("bob", claim.Coord{X: 1, Z: 0}))
}

func TestUnclaim(t *testing.T) {
	h := newHarness(t)
	h.svc.CreateFaction("A", "alice")
	h.svc.CreateFaction("B", "bob")
	c := claim.Coord{X: 0, Z: 0}
	require.NoError(t, h.svc.Claim("alice", c))

	h.advance(time.Minute)
	assert.ErrorIs(t, h.svc.Unclaim("bob", c), ErrNotYourClaim)
	require.NoError(t, h.svc.Unclaim("alice", c))
	_, claimed := h.svc.OwnerOf(c)
	assert.False(t, claimed)
}

func TestOvertakeRequiresWar(t *testing.T) {
	h := newHarness(t)
	a, _ := h.svc.CreateFaction("A", "alice")
	b, _ := h.svc.CreateFaction("B", "bob")
	c := claim.Coord{X: 0, Z: 0}
	require.NoError(t, h.svc.Claim("alice", c))

	assert.ErrorIs(t, h.svc.Overtake("bob", c), ErrCannotOvertake)

	require.NoError(t, h.svc.SetRelation("bob", "A", "war"))
	assert.Equal(t, relation.War, h.svc.RelationOf(a.ID, b.ID))

	require.NoError(t, h.svc.Overtake("bob", c))
	owner, _ := h.svc.OwnerOf(c)
	assert.Equal(t, b.ID, owner)

	assert.ErrorIs(t, h.svc.Overtake("bob", c), ErrSameFaction)
	assert.ErrorIs(t, h.svc.Overtake("bob", claim.Coord{X: 9, Z: 9}), ErrNotYourClaim)
}

func TestBreakawayByOvertakes(t *testing.T) {
	h := newHarness(t)
	lord, _ := h.svc.CreateFaction("Crown", "king")
	vassal, _ := h.svc.CreateFaction("March", "duke")

	require.NoError(t, h.svc.SetVassal(lord.ID, vassal.ID))

	// Breakaway requires an overlord bond and declares the war itself.
	assert.Error(t, h.svc.StartBreakaway("king"))
	require.NoError(t, h.svc.StartBreakaway("duke"))
	assert.True(t, h.svc.Relations.IsAtWar(lord.ID, vassal.ID))

	coords := []claim.Coord{{X: 0, Z: 0}, {X: 1, Z: 0}, {X: 2, Z: 0}}
	for _, c := range coords {
		h.advance(time.Minute)
		require.NoError(t, h.svc.Claim("king", c))
	}
	for _, c := range coords {
		require.NoError(t, h.svc.Overtake("duke", c))
	}

	_, bound := h.svc.Relations.OverlordOf(vassal.ID)
	assert.False(t, bound, "three captures should free the vassal")
}

func TestDisbandCascade(t *testing.T) {
	h := newHarness(t)
	a, _ := h.svc.CreateFaction("A", "alice")
	b, _ := h.svc.CreateFaction("B", "bob")

	c := claim.Coord{X: 0, Z: 0}
	require.NoError(t, h.svc.Claim("alice", c))
	require.NoError(t, h.svc.SetRelation("alice", "B", "war"))
	require.NoError(t, h.svc.SetVassal(b.ID, a.ID))
	require.NoError(t, h.svc.Invite("alice", "carol"))

	h.svc.DisbandFaction(a.ID)

	assert.Nil(t, h.svc.FactionOf("alice"))
	_, claimed := h.svc.OwnerOf(c)
	assert.False(t, claimed)
	assert.Equal(t, relation.Neutral, h.svc.RelationOf(a.ID, b.ID))
	_, bound := h.svc.Relations.OverlordOf(a.ID)
	assert.False(t, bound)
	assert.ErrorIs(t, h.svc.AcceptInvite("carol"), ErrNoInvite)

	// Idempotent.
	h.svc.DisbandFaction(a.ID)
}

func TestDisbandByOwnerOnly(t *testing.T) {
	h := newHarness(t)
	f, _ := h.svc.CreateFaction("A", "alice")
	require.NoError(t, h.svc.Registry.AddMember(f.ID, "bob", faction.RoleMember))

	assert.ErrorIs(t, h.svc.DisbandBy("bob"), ErrOwnerOnly)
	require.NoError(t, h.svc.DisbandBy("alice"))
	assert.Nil(t, h.svc.FactionOf("bob"))
}

func TestLeaveSuccessionAndEmptyDisband(t *testing.T) {
	h := newHarness(t)
	f, _ := h.svc.CreateFaction("A", "zed")
	require.NoError(t, h.svc.Registry.AddMember(f.ID, "bob", faction.RoleMember))

	require.NoError(t, h.svc.Leave("zed"))
	assert.Equal(t, faction.PlayerID("bob"), f.OwnerID)

	require.NoError(t, h.svc.Leave("bob"))
	assert.Nil(t, h.svc.Registry.ByID(f.ID), "emptied faction should be disbanded")
}

func TestKick(t *testing.T) {
	h := newHarness(t)
	f, _ := h.svc.CreateFaction("A", "alice")
	require.NoError(t, h.svc.Registry.AddMember(f.ID, "bob", faction.RoleMember))

	assert.ErrorIs(t, h.svc.Kick("bob", "alice"), ErrNoPermission)
	require.NoError(t, h.svc.Kick("alice", "bob"))
	assert.Nil(t, h.svc.FactionOf("bob"))
}

func TestSetRoleAndPermissions(t *testing.T) {
	h := newHarness(t)
	f, _ := h.svc.CreateFaction("A", "alice")
	require.NoError(t, h.svc.Registry.AddMember(f.ID, "bob", faction.RoleMember))

	require.NoError(t, h.svc.SetRole("alice", "bob", "officer"))
	role, _ := f.RoleOf("bob")
	assert.Equal(t, faction.RoleOfficer, role)

	assert.Error(t, h.svc.SetRole("alice", "bob", "owner"))
	assert.Error(t, h.svc.SetRole("alice", "bob", "king"))
	assert.ErrorIs(t, h.svc.SetRole("bob", "alice", "member"), ErrOwnerOnly)

	require.NoError(t, h.svc.SetPermission("alice", "member", "chunk_overtake", true))
	require.NoError(t, h.svc.Registry.AddMember(f.ID, "carol", faction.RoleMember))
	assert.True(t, f.HasCapability("carol", faction.CapChunkOvertake))

	require.NoError(t, h.svc.SetPermission("alice", "member", "chunk_overtake", false))
	assert.False(t, f.HasCapability("carol", faction.CapChunkOvertake))

	assert.Error(t, h.svc.SetPermission("alice", "member", "fly", true))
}

func TestClearRelationIdempotent(t *testing.T) {
	h := newHarness(t)
	h.svc.CreateFaction("A", "alice")
	h.svc.CreateFaction("B", "bob")

	require.NoError(t, h.svc.SetRelation("alice", "B", "ally"))
	require.NoError(t, h.svc.ClearRelation("alice", "B"))
	require.NoError(t, h.svc.ClearRelation("alice", "B"))

	assert.ErrorIs(t, h.svc.SetRelation("alice", "A", "war"), ErrSameFaction)
	assert.ErrorIs(t, h.svc.SetRelation("alice", "Nobody", "war"), ErrFactionNotFound)
}

func TestCheckPermission(t *testing.T) {
	h := newHarness(t)
	f, _ := h.svc.CreateFaction("A", "alice")
	c := claim.Coord{X: 0, Z: 0}

	// Unclaimed land allows everything.
	assert.True(t, h.svc.CheckPermission("stranger", c, faction.CapBlockBreak))

	require.NoError(t, h.svc.Claim("alice", c))
	assert.True(t, h.svc.CheckPermission("alice", c, faction.CapBlockBreak))
	assert.False(t, h.svc.CheckPermission("stranger", c, faction.CapBlockBreak))

	// Safe-zone claims gate the same way.
	safe := claim.Coord{X: 5, Z: 5}
	require.NoError(t, h.svc.MarkSafeZone(f.ID, safe))
	assert.True(t, h.svc.CheckPermission("alice", safe, faction.CapBlockPlace))
	assert.False(t, h.svc.CheckPermission("stranger", safe, faction.CapBlockPlace))
}

func TestHandleMoveAutoClaim(t *testing.T) {
	h := newHarness(t)
	h.svc.CreateFaction("A", "alice")

	// Disabled by default: movement claims nothing.
	h.svc.HandleMove("alice", claim.Coord{X: 0, Z: 0})
	_, claimed := h.svc.OwnerOf(claim.Coord{X: 0, Z: 0})
	assert.False(t, claimed)

	h.svc.SetAutoClaim("alice", true)
	h.svc.HandleMove("alice", claim.Coord{X: 1, Z: 0})
	_, claimed = h.svc.OwnerOf(claim.Coord{X: 1, Z: 0})
	assert.True(t, claimed)

	// Second chunk within the auto cooldown stays unclaimed, silently.
	h.svc.HandleMove("alice", claim.Coord{X: 2, Z: 0})
	_, claimed = h.svc.OwnerOf(claim.Coord{X: 2, Z: 0})
	assert.False(t, claimed)

	h.advance(30 * time.Second)
	h.svc.HandleMove("alice", claim.Coord{X: 3, Z: 0})
	_, claimed = h.svc.OwnerOf(claim.Coord{X: 3, Z: 0})
	assert.True(t, claimed)
}

func TestHandleMoveDeduplicatesChunk(t *testing.T) {
	h := newHarness(t)
	h.svc.CreateFaction("A", "alice")
	h.svc.SetAutoClaim("alice", true)

	c := claim.Coord{X: 0, Z: 0}
	h.svc.HandleMove("alice", c)
	require.NoError(t, h.svc.Unclaim("alice", c))

	// Same chunk again: deduplicated, no re-claim.
	h.svc.HandleMove("alice", c)
	_, claimed := h.svc.OwnerOf(c)
	assert.False(t, claimed)
}

func TestStartSiegeRequiresCapability(t *testing.T) {
	h := newHarness(t)
	a, _ := h.svc.CreateFaction("A", "alice")
	h.svc.CreateFaction("B", "bob")
	c := claim.Coord{X: 0, Z: 0}
	require.NoError(t, h.svc.Claim("alice", c))
	require.NoError(t, h.svc.SetRelation("bob", "A", "war"))

	require.NoError(t, h.svc.Registry.AddMember(a.ID, "al2", faction.RoleMember))
	assert.ErrorIs(t, h.svc.StartSiege("al2", "overworld", c), ErrNoPermission)
	assert.ErrorIs(t, h.svc.StartSiege("nobody", "overworld", c), ErrNoFaction)

	require.NoError(t, h.svc.StartSiege("bob", "overworld", c))
	_, active := h.svc.Sieges.Active(h.svc.FactionOf("bob").ID)
	assert.True(t, active)

	require.NoError(t, h.svc.AbandonSiege("bob"))
	_, active = h.svc.Sieges.Active(h.svc.FactionOf("bob").ID)
	assert.False(t, active)
}

func TestHandlePlayerKilledFeedsSieges(t *testing.T) {
	h := newHarness(t)
	h.svc.CreateFaction("A", "alice")
	b, _ := h.svc.CreateFaction("B", "bob")
	c := claim.Coord{X: 0, Z: 0}
	require.NoError(t, h.svc.Claim("alice", c))
	require.NoError(t, h.svc.SetRelation("bob", "A", "war"))
	require.NoError(t, h.svc.StartSiege("bob", "overworld", c))

	h.svc.HandlePlayerKilled("bob", "alice")
	info, _ := h.svc.Sieges.Active(b.ID)
	assert.Equal(t, "leader_down", info.State)

	// Kills by factionless players are ignored.
	h.svc.HandlePlayerKilled("bob", "stranger")
}

func TestExportImportRoundTrip(t *testing.T) {
	h := newHarness(t)
	a, _ := h.svc.CreateFaction("A", "alice")
	b, _ := h.svc.CreateFaction("B", "bob")
	c := claim.Coord{X: 0, Z: 0}
	require.NoError(t, h.svc.Claim("alice", c))
	require.NoError(t, h.svc.MarkSafeZone(a.ID, claim.Coord{X: 5, Z: 5}))
	require.NoError(t, h.svc.SetRelation("alice", "B", "war"))
	require.NoError(t, h.svc.SetVassal(b.ID, a.ID))

	st := h.svc.ExportState()

	h2 := newHarness(t)
	h2.svc.ImportState(st)

	assert.Equal(t, a.ID, h2.svc.FactionOf("alice").ID)
	owner, _ := h2.svc.OwnerOf(c)
	assert.Equal(t, a.ID, owner)
	assert.True(t, h2.svc.Relations.IsAtWar(a.ID, b.ID))
	overlord, _ := h2.svc.Relations.OverlordOf(a.ID)
	assert.Equal(t, b.ID, overlord)
	_, safe := h2.svc.Ledger.SafeZoneOwner(claim.Coord{X: 5, Z: 5})
	assert.True(t, safe)
}
