// Package core ties the faction registry, claim ledger, relation graph,
// siege engine, and teleport channels together behind one long-lived
// service. All state hangs off the Service so request handlers receive it
// by injection; there are no package-level registries.
package core

import (
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/dominion/internal/claim"
	"github.com/talgya/dominion/internal/event"
	"github.com/talgya/dominion/internal/faction"
	"github.com/talgya/dominion/internal/relation"
	"github.com/talgya/dominion/internal/siege"
	"github.com/talgya/dominion/internal/teleport"
	"github.com/talgya/dominion/internal/zone"
)

// Config is the claim/membership policy of the service.
type Config struct {
	BaseCapacity            int
	PerMemberCapacity       int
	LevelDivisor            int
	PerLevelCapacityBonus   int
	BaseCooldown            time.Duration
	PerLevelCooldownCut     time.Duration
	OwnerCooldownMultiplier float64
	AutoClaimCooldown       time.Duration
	InviteTTL               time.Duration
	BreakawayCaptures       int
}

// DefaultConfig returns the standard policy.
func DefaultConfig() Config {
	return Config{
		BaseCapacity:            6,
		PerMemberCapacity:       4,
		LevelDivisor:            5,
		PerLevelCapacityBonus:   10,
		BaseCooldown:            10 * time.Second,
		PerLevelCooldownCut:     2 * time.Second,
		OwnerCooldownMultiplier: 0.5,
		AutoClaimCooldown:       30 * time.Second,
		InviteTTL:               5 * time.Minute,
		BreakawayCaptures:       3,
	}
}

type invite struct {
	Faction faction.FactionID
	Expires time.Time
}

// Service owns all faction-domain state. The registry, ledger, and graph
// form one logical store: every mutating command is serialized under mu so
// "one owner per coordinate" and "one faction per player" hold under
// concurrent requests. Reads go straight to the stores, which are
// internally read-locked.
type Service struct {
	mu sync.Mutex

	cfg       Config
	Registry  *faction.Registry
	Ledger    *claim.Ledger
	Relations *relation.Graph
	Zones     *zone.Map
	Sieges    *siege.Engine
	Teleports *teleport.Manager

	cooldowns *claim.CooldownTracker
	sink      event.Sink

	// Per-player ephemeral state. Independent per player; no cross-player
	// coordination needed.
	invites   map[faction.PlayerID]invite
	autoClaim map[faction.PlayerID]bool
	lastChunk map[faction.PlayerID]claim.Coord

	now func() time.Time
}

// Deps are the host-engine collaborators the core depends on abstractly.
type Deps struct {
	Presence siege.Presence
	Locator  teleport.Locator
	Mover    teleport.Mover
	Sink     event.Sink
}

// NewService wires the full core.
func NewService(cfg Config, siegeCfg siege.Config, teleCfg teleport.Config, zones *zone.Map, deps Deps) *Service {
	if deps.Sink == nil {
		deps.Sink = event.NopSink{}
	}
	s := &Service{
		cfg:       cfg,
		Registry:  faction.NewRegistry(),
		Relations: relation.NewGraph(cfg.BreakawayCaptures),
		Zones:     zones,
		cooldowns: claim.NewCooldownTracker(),
		sink:      deps.Sink,
		invites:   make(map[faction.PlayerID]invite),
		autoClaim: make(map[faction.PlayerID]bool),
		lastChunk: make(map[faction.PlayerID]claim.Coord),
		now:       time.Now,
	}
	s.Ledger = claim.NewLedger(s, s.Relations)
	s.Sieges = siege.NewEngine(siegeCfg, s.Ledger, s.Relations, deps.Presence, deps.Sink)
	s.Teleports = teleport.NewManager(teleCfg, s.Ledger, deps.Locator, deps.Mover, deps.Sink)
	return s
}

// SetClock overrides the clock on the service and its state machines.
// Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.cooldowns.SetClock(now)
	s.Sieges.SetClock(now)
	s.Teleports.SetClock(now)
}

// ClaimCapacity derives a faction's claim cap from its member count:
// base + per-member bonus, plus a bonus per faction level. Level is
// member count divided by the level divisor.
func (s *Service) ClaimCapacity(id faction.FactionID) int {
	f := s.Registry.ByID(id)
	if f == nil {
		return 0
	}
	members := len(f.Members)
	return s.cfg.BaseCapacity +
		s.cfg.PerMemberCapacity*members +
		s.cfg.PerLevelCapacityBonus*s.factionLevel(members)
}

func (s *Service) factionLevel(members int) int {
	if s.cfg.LevelDivisor <= 0 {
		return 0
	}
	return members / s.cfg.LevelDivisor
}

// actionCooldown is the claim/unclaim cooldown for a player: the base,
// reduced per faction level (floored at zero), multiplied for the owner.
func (s *Service) actionCooldown(f *faction.Faction, p faction.PlayerID) time.Duration {
	d := s.cfg.BaseCooldown - time.Duration(s.factionLevel(len(f.Members)))*s.cfg.PerLevelCooldownCut
	if d < 0 {
		d = 0
	}
	if p == f.OwnerID {
		d = time.Duration(float64(d) * s.cfg.OwnerCooldownMultiplier)
	}
	return d
}

// Tick advances all time-based state machines by one step. Driven at a
// fixed cadence by the Ticker.
func (s *Service) Tick() {
	s.Sieges.Tick()
	s.Teleports.Tick()
	s.expireInvites()
}

func (s *Service) expireInvites() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for p, inv := range s.invites {
		if now.After(inv.Expires) {
			delete(s.invites, p)
		}
	}
}

// ─── Query surface ───────────────────────────────────────────────────────

// FactionOf returns the player's faction, or nil.
func (s *Service) FactionOf(p faction.PlayerID) *faction.Faction {
	return s.Registry.ByPlayer(p)
}

// OwnerOf returns the normal-namespace owner of a coordinate.
func (s *Service) OwnerOf(c claim.Coord) (faction.FactionID, bool) {
	return s.Ledger.OwnerOf(c)
}

// RelationOf returns the diplomatic state between two factions.
func (s *Service) RelationOf(a, b faction.FactionID) relation.Kind {
	return s.Relations.Relation(a, b)
}

// CheckPermission is the single gate world-event hooks call before letting
// a player act at a coordinate. Unclaimed land allows everything. Claimed
// land (either namespace) defers to the owning faction's permission table,
// so non-members are denied.
func (s *Service) CheckPermission(p faction.PlayerID, c claim.Coord, cap faction.Capability) bool {
	owner, claimed := s.Ledger.SafeZoneOwner(c)
	if !claimed {
		owner, claimed = s.Ledger.OwnerOf(c)
	}
	if !claimed {
		return true
	}
	f := s.Registry.ByID(owner)
	if f == nil {
		return true
	}
	return f.HasCapability(p, cap)
}

// ExportState snapshots everything that must survive a restart. Siege,
// teleport, cooldown, and invite state is deliberately absent.
func (s *Service) ExportState() State {
	claims, safe := s.Ledger.All()
	return State{
		Factions:   s.Registry.All(),
		Claims:     claims,
		SafeClaims: safe,
		Relations:  s.Relations.Edges(),
		Vassals:    s.Relations.VassalEdges(),
	}
}

// ImportState restores a persisted snapshot, replacing current state.
func (s *Service) ImportState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Registry.Restore(st.Factions)
	s.Ledger.Restore(st.Claims, st.SafeClaims)
	s.Relations.Restore(st.Relations, st.Vassals)
	slog.Info("state restored",
		"factions", len(st.Factions),
		"claims", len(st.Claims),
		"safe_claims", len(st.SafeClaims),
		"relations", len(st.Relations),
		"vassals", len(st.Vassals),
	)
}

// State is the persistable snapshot of the logical store.
type State struct {
	Factions   []*faction.Faction
	Claims     map[claim.Coord]faction.FactionID
	SafeClaims map[claim.Coord]faction.FactionID
	Relations  []relation.Edge
	Vassals    []relation.VassalEdge
}
