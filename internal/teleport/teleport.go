// Package teleport implements the channeled home-teleport action: the
// player stands still for a delay, then is moved to a claim their faction
// owns. Movement, combat, or losing the destination claim cancels it.
package teleport

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/talgya/dominion/internal/claim"
	"github.com/talgya/dominion/internal/event"
	"github.com/talgya/dominion/internal/faction"
)

// Manager errors.
var (
	ErrAlreadyChanneling = errors.New("teleport already in progress")
	ErrNoFaction         = errors.New("player does not belong to a faction")
	ErrNotOwnClaim       = errors.New("destination is not claimed by your faction")
	ErrPlayerOffline     = errors.New("player position unavailable")
)

// Position is a player location in the world.
type Position struct {
	World   string
	X, Y, Z float64
}

// Locator resolves a player's current position. Implemented by the host
// engine; ok is false when the player is offline.
type Locator interface {
	Position(p faction.PlayerID) (Position, bool)
}

// Mover performs the actual teleport. Implemented by the host engine.
type Mover interface {
	Teleport(p faction.PlayerID, world string, c claim.Coord)
}

// Config holds teleport channel policy.
type Config struct {
	Delay            time.Duration // total channel time
	ParticleInterval time.Duration // feedback cadence
	MoveTolerance    float64       // horizontal drift allowed before cancel
	// Remaining-time marks at which a countdown notice fires exactly once
	// per crossing, descending (e.g. 10s, 3s).
	NoticeMarks []time.Duration
}

// DefaultConfig returns the standard channel policy.
func DefaultConfig() Config {
	return Config{
		Delay:            30 * time.Second,
		ParticleInterval: time.Second,
		MoveTolerance:    0.5,
		NoticeMarks:      []time.Duration{10 * time.Second, 3 * time.Second},
	}
}

// Pending is one in-flight channel. Transient; not persisted.
type Pending struct {
	Player       faction.PlayerID
	Origin       Position
	Dest         claim.Coord
	Faction      faction.FactionID // owner recorded at start
	StartedAt    time.Time
	lastParticle time.Time
	nextNotice   int // index into cfg.NoticeMarks
}

// Manager owns all pending teleports, keyed by player id. Per-player state
// has no cross-player contention; one mutex over the map suffices.
type Manager struct {
	mu      sync.Mutex
	pending map[faction.PlayerID]*Pending

	cfg     Config
	ledger  *claim.Ledger
	locator Locator
	mover   Mover
	sink    event.Sink
	now     func() time.Time
}

// NewManager creates a teleport manager.
func NewManager(cfg Config, ledger *claim.Ledger, locator Locator, mover Mover, sink event.Sink) *Manager {
	if sink == nil {
		sink = event.NopSink{}
	}
	return &Manager{
		pending: make(map[faction.PlayerID]*Pending),
		cfg:     cfg,
		ledger:  ledger,
		locator: locator,
		mover:   mover,
		sink:    sink,
		now:     time.Now,
	}
}

// SetClock overrides the clock. Test hook.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Start begins channeling a teleport for the player to dest. The player
// must belong to the faction that owns dest.
func (m *Manager) Start(p faction.PlayerID, id faction.FactionID, dest claim.Coord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, active := m.pending[p]; active {
		return ErrAlreadyChanneling
	}
	if id == "" {
		return ErrNoFaction
	}
	owner, ok := m.ledger.OwnerOf(dest)
	if !ok || owner != id {
		return ErrNotOwnClaim
	}
	pos, ok := m.locator.Position(p)
	if !ok {
		return ErrPlayerOffline
	}

	now := m.now()
	m.pending[p] = &Pending{
		Player:       p,
		Origin:       pos,
		Dest:         dest,
		Faction:      id,
		StartedAt:    now,
		lastParticle: now,
	}
	m.sink.PlayerMessage(p, fmt.Sprintf("Teleporting home in %s. Don't move.", m.cfg.Delay))
	return nil
}

// Cancel aborts the player's channel with a reason. Idempotent.
func (m *Manager) Cancel(p faction.PlayerID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelLocked(p, reason)
}

func (m *Manager) cancelLocked(p faction.PlayerID, reason string) {
	if _, active := m.pending[p]; !active {
		return
	}
	delete(m.pending, p)
	m.sink.PlayerMessage(p, "Teleport cancelled: "+reason)
}

// HandleCombat cancels the channel on a combat or interaction event.
func (m *Manager) HandleCombat(p faction.PlayerID) {
	m.Cancel(p, "you took damage")
}

// HandleDisconnect drops the channel silently.
func (m *Manager) HandleDisconnect(p faction.PlayerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, p)
}

// IsChanneling reports whether the player has a channel in flight.
func (m *Manager) IsChanneling(p faction.PlayerID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, active := m.pending[p]
	return active
}

// Tick advances every pending channel. Entries finishing or cancelling
// during the scan are collected and removed afterwards.
func (m *Manager) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	type outcome struct {
		p      faction.PlayerID
		reason string // empty = completed
		moved  bool
	}
	var done []outcome

	now := m.now()
	for p, pd := range m.pending {
		pos, online := m.locator.Position(p)
		if !online {
			done = append(done, outcome{p: p, reason: ""})
			continue
		}
		if horizontalDrift(pd.Origin, pos) > m.cfg.MoveTolerance {
			done = append(done, outcome{p: p, reason: "you moved"})
			continue
		}

		elapsed := now.Sub(pd.StartedAt)
		remaining := m.cfg.Delay - elapsed

		if remaining <= 0 {
			// Re-validate ownership recorded at start.
			owner, ok := m.ledger.OwnerOf(pd.Dest)
			if !ok || owner != pd.Faction {
				done = append(done, outcome{p: p, reason: "your faction no longer owns the destination"})
				continue
			}
			done = append(done, outcome{p: p, moved: true})
			continue
		}

		// One notice per threshold crossing, never repeated.
		for pd.nextNotice < len(m.cfg.NoticeMarks) && remaining <= m.cfg.NoticeMarks[pd.nextNotice] {
			m.sink.PlayerMessage(p, fmt.Sprintf("Teleporting in %s...", remaining.Round(time.Second)))
			pd.nextNotice++
		}

		if now.Sub(pd.lastParticle) >= m.cfg.ParticleInterval {
			pd.lastParticle = now
			// Particle feedback is a player-message in this core; the
			// host renders it however it likes.
			m.sink.PlayerMessage(p, "channeling...")
		}
	}

	for _, o := range done {
		pd := m.pending[o.p]
		delete(m.pending, o.p)
		switch {
		case o.moved:
			m.mover.Teleport(o.p, pd.Origin.World, pd.Dest)
			m.sink.PlayerMessage(o.p, "Teleported home.")
			slog.Info("home teleport complete", "player", string(o.p), "dest", pd.Dest.String())
		case o.reason != "":
			m.sink.PlayerMessage(o.p, "Teleport cancelled: "+o.reason)
		}
	}
}

func horizontalDrift(a, b Position) float64 {
	if a.World != b.World {
		return math.Inf(1)
	}
	dx := a.X - b.X
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dz*dz)
}
