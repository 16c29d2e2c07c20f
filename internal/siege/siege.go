// Package siege runs the timed conflict process that converts sustained
// presence or absence in a contested claim into an ownership transfer.
// At most one active siege exists per attacking faction.
package siege

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/dominion/internal/claim"
	"github.com/talgya/dominion/internal/event"
	"github.com/talgya/dominion/internal/faction"
	"github.com/talgya/dominion/internal/relation"
)

// State of an active siege. Terminal outcomes (success, failure, breakaway
// success) remove the siege rather than being stored.
type State uint8

const (
	// StateArmed: siege registered, attacking leader alive.
	StateArmed State = iota
	// StateLeaderDown: the attacking leader died; defenders break the
	// siege by keeping attackers out for the grace window.
	StateLeaderDown
)

func (s State) String() string {
	if s == StateLeaderDown {
		return "leader_down"
	}
	return "armed"
}

// Engine errors.
var (
	ErrSiegeActive = errors.New("faction already has an active siege")
	ErrNotClaimed  = errors.New("chunk is not claimed")
	ErrOwnClaim    = errors.New("cannot besiege your own claim")
	ErrNotAtWar    = errors.New("not at war with the claim owner")
	ErrNoSuchSiege = errors.New("no active siege for this faction")
)

// Presence answers whether players are physically inside a contested chunk.
// Implemented by the host engine's position tracking.
type Presence interface {
	// PlayerInChunk reports whether the player is online, in the given
	// world, and within the chunk.
	PlayerInChunk(p faction.PlayerID, world string, c claim.Coord) bool
	// FactionInChunk reports whether any member of the faction is inside
	// the chunk.
	FactionInChunk(id faction.FactionID, world string, c claim.Coord) bool
}

// Config holds the siege timing policy. The three thresholds are
// independent fixed durations; all time math uses wall-clock deltas so the
// engine is robust to variable tick rates.
type Config struct {
	OffenseThreshold  time.Duration // sustained attacker presence to win
	DefenseThreshold  time.Duration // sustained holding to win a breakaway defense
	LeaderDownGrace   time.Duration // attacker absence after leader kill that breaks the siege
	BroadcastInterval time.Duration // status message cadence
}

// DefaultConfig returns the standard siege timings.
func DefaultConfig() Config {
	return Config{
		OffenseThreshold:  10 * time.Minute,
		DefenseThreshold:  15 * time.Minute,
		LeaderDownGrace:   5 * time.Minute,
		BroadcastInterval: 30 * time.Second,
	}
}

// Siege is the transient state of one attack. Not persisted; resets on
// restart.
type Siege struct {
	Attacker  faction.FactionID
	Defender  faction.FactionID
	Channeler faction.PlayerID
	World     string
	Coord     claim.Coord
	State     State
	StartedAt time.Time

	// True when the defender is a vassal of the attacker with an active
	// breakaway war; the defender then wins by sustained holding.
	BreakawayDefense bool

	attackElapsed    time.Duration
	holdElapsed      time.Duration
	lastAttackerSeen time.Time
	lastBroadcast    time.Time
	lastStep         time.Time
}

// Info is a read-only snapshot of a siege for queries.
type Info struct {
	Attacker         faction.FactionID `json:"attacker"`
	Defender         faction.FactionID `json:"defender"`
	Channeler        faction.PlayerID  `json:"channeler"`
	World            string            `json:"world"`
	Coord            claim.Coord       `json:"coord"`
	State            string            `json:"state"`
	BreakawayDefense bool              `json:"breakaway_defense"`
	AttackElapsed    time.Duration     `json:"attack_elapsed"`
	HoldElapsed      time.Duration     `json:"hold_elapsed"`
}

// Engine owns all active sieges, keyed by attacker faction id. Thread-safe:
// the check-then-insert in Start and the tick scan share mu, so a faction
// can never register a second siege concurrently.
type Engine struct {
	mu     sync.Mutex
	sieges map[faction.FactionID]*Siege

	cfg      Config
	ledger   *claim.Ledger
	graph    *relation.Graph
	presence Presence
	sink     event.Sink
	now      func() time.Time
}

// NewEngine creates a siege engine.
func NewEngine(cfg Config, ledger *claim.Ledger, graph *relation.Graph, presence Presence, sink event.Sink) *Engine {
	if sink == nil {
		sink = event.NopSink{}
	}
	return &Engine{
		sieges:   make(map[faction.FactionID]*Siege),
		cfg:      cfg,
		ledger:   ledger,
		graph:    graph,
		presence: presence,
		sink:     sink,
		now:      time.Now,
	}
}

// SetClock overrides the clock. Test hook.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Start registers a siege by the attacker against the current owner of the
// chunk. The duplicate check and insert are atomic.
func (e *Engine) Start(attacker faction.FactionID, channeler faction.PlayerID, world string, c claim.Coord) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, active := e.sieges[attacker]; active {
		return ErrSiegeActive
	}
	defender, ok := e.ledger.OwnerOf(c)
	if !ok {
		return ErrNotClaimed
	}
	if defender == attacker {
		return ErrOwnClaim
	}
	if !e.graph.IsAtWar(attacker, defender) {
		return ErrNotAtWar
	}

	now := e.now()
	overlord, isVassal := e.graph.OverlordOf(defender)
	s := &Siege{
		Attacker:         attacker,
		Defender:         defender,
		Channeler:        channeler,
		World:            world,
		Coord:            c,
		State:            StateArmed,
		StartedAt:        now,
		BreakawayDefense: isVassal && overlord == attacker && e.graph.IsBreakawayActive(defender),
		lastAttackerSeen: now,
		lastBroadcast:    now,
		lastStep:         now,
	}
	e.sieges[attacker] = s

	slog.Info("siege started",
		"attacker", string(attacker),
		"defender", string(defender),
		"coord", c.String(),
		"breakaway_defense", s.BreakawayDefense,
	)
	e.sink.FactionMessage(attacker, fmt.Sprintf("Siege begun on %s.", c))
	e.sink.FactionMessage(defender, fmt.Sprintf("Your claim at %s is under siege!", c))
	return nil
}

// HandleAttackerKilled transitions a siege from armed to leader-down when
// the victim is the siege's channeling player and the killer belongs to the
// defending faction. Idempotent against repeated kills.
func (e *Engine) HandleAttackerKilled(victim faction.PlayerID, killerFaction faction.FactionID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, s := range e.sieges {
		if s.Channeler != victim || s.Defender != killerFaction {
			continue
		}
		if s.State == StateLeaderDown {
			continue
		}
		s.State = StateLeaderDown
		s.lastAttackerSeen = e.now()
		slog.Info("siege leader down",
			"attacker", string(s.Attacker), "coord", s.Coord.String())
		e.sink.FactionMessage(s.Attacker, "Your siege leader has fallen. Hold the claim or the siege breaks.")
		e.sink.FactionMessage(s.Defender, fmt.Sprintf("The siege leader is down. Keep attackers out for %s to break the siege.", e.cfg.LeaderDownGrace))
	}
}

// Abandon withdraws the faction's own attacking siege.
func (e *Engine) Abandon(attacker faction.FactionID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sieges[attacker]
	if !ok {
		return ErrNoSuchSiege
	}
	delete(e.sieges, attacker)
	slog.Info("siege abandoned", "attacker", string(attacker), "coord", s.Coord.String())
	e.sink.FactionMessage(s.Attacker, fmt.Sprintf("You have abandoned the siege on %s.", s.Coord))
	e.sink.FactionMessage(s.Defender, fmt.Sprintf("The attackers have abandoned the siege on %s.", s.Coord))
	return nil
}

// Cancel removes any siege the faction is attacking or defending in.
// Used by the disband cascade. Idempotent.
func (e *Engine) Cancel(id faction.FactionID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for attacker, s := range e.sieges {
		if s.Attacker == id || s.Defender == id {
			delete(e.sieges, attacker)
		}
	}
}

// Active returns a snapshot of the faction's attacking siege.
func (e *Engine) Active(attacker faction.FactionID) (Info, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sieges[attacker]
	if !ok {
		return Info{}, false
	}
	return s.info(), true
}

// All returns snapshots of every active siege.
func (e *Engine) All() []Info {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Info, 0, len(e.sieges))
	for _, s := range e.sieges {
		out = append(out, s.info())
	}
	return out
}

func (s *Siege) info() Info {
	return Info{
		Attacker:         s.Attacker,
		Defender:         s.Defender,
		Channeler:        s.Channeler,
		World:            s.World,
		Coord:            s.Coord,
		State:            s.State.String(),
		BreakawayDefense: s.BreakawayDefense,
		AttackElapsed:    s.attackElapsed,
		HoldElapsed:      s.holdElapsed,
	}
}

// Tick advances every active siege. Finished sieges are collected during
// the scan and removed after it, so an entry completing mid-scan is never
// double-processed.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	var finished []faction.FactionID
	for attacker, s := range e.sieges {
		if e.step(s) {
			finished = append(finished, attacker)
		}
	}
	for _, attacker := range finished {
		delete(e.sieges, attacker)
	}
}

// step advances one siege by the wall-clock delta since its last step.
// Returns true when the siege is over and should be removed.
func (e *Engine) step(s *Siege) bool {
	now := e.now()
	dt := now.Sub(s.lastStep)
	s.lastStep = now

	// Preconditions: claim still held by the recorded defender, war still on.
	owner, ok := e.ledger.OwnerOf(s.Coord)
	if !ok || owner != s.Defender || !e.graph.IsAtWar(s.Attacker, s.Defender) {
		slog.Info("siege ended: preconditions lost",
			"attacker", string(s.Attacker), "coord", s.Coord.String())
		e.sink.FactionMessage(s.Attacker, fmt.Sprintf("The siege on %s has collapsed.", s.Coord))
		e.sink.FactionMessage(s.Defender, fmt.Sprintf("The siege on %s has collapsed.", s.Coord))
		return true
	}

	attackerPresent := e.presence.FactionInChunk(s.Attacker, s.World, s.Coord)
	if attackerPresent {
		s.lastAttackerSeen = now
	}

	// Offense timer: channeler presence, only while the leader stands.
	if s.State == StateArmed && e.presence.PlayerInChunk(s.Channeler, s.World, s.Coord) {
		s.attackElapsed += dt
	}

	// Breakaway defense timer: defender wins by keeping all attackers out.
	// Any attacker entering resets the hold.
	if s.BreakawayDefense {
		if attackerPresent {
			s.holdElapsed = 0
		} else {
			s.holdElapsed += dt
			if s.holdElapsed >= e.cfg.DefenseThreshold {
				return e.finishBreakawayDefense(s)
			}
		}
	}

	// Leader down: siege breaks if attackers stay out for the grace window.
	if s.State == StateLeaderDown && now.Sub(s.lastAttackerSeen) > e.cfg.LeaderDownGrace {
		slog.Info("siege broken: defense held after leader kill",
			"attacker", string(s.Attacker), "coord", s.Coord.String())
		e.sink.FactionMessage(s.Attacker, fmt.Sprintf("Your siege on %s has been broken.", s.Coord))
		e.sink.FactionMessage(s.Defender, fmt.Sprintf("You broke the siege on %s!", s.Coord))
		return true
	}

	if s.attackElapsed >= e.cfg.OffenseThreshold {
		return e.finishOffense(s)
	}

	if now.Sub(s.lastBroadcast) >= e.cfg.BroadcastInterval {
		s.lastBroadcast = now
		e.broadcastStatus(s, now)
	}
	return false
}

func (e *Engine) finishOffense(s *Siege) bool {
	if !e.ledger.Overtake(s.Coord, s.Attacker) {
		slog.Warn("siege overtake rejected",
			"attacker", string(s.Attacker), "coord", s.Coord.String())
		e.sink.FactionMessage(s.Attacker, fmt.Sprintf("The siege on %s failed: the claim could not be taken.", s.Coord))
		return true
	}

	slog.Info("siege succeeded",
		"attacker", string(s.Attacker), "defender", string(s.Defender),
		"coord", s.Coord.String())
	e.sink.ClaimChanged(s.Coord, s.Attacker, true)
	e.sink.FactionMessage(s.Attacker, fmt.Sprintf("You have captured %s!", s.Coord))
	e.sink.FactionMessage(s.Defender, fmt.Sprintf("You have lost %s to siege.", s.Coord))

	// A vassal capturing from its overlord advances the breakaway war.
	if e.graph.RecordBreakawayCapture(s.Attacker, s.Defender) {
		slog.Info("breakaway complete",
			"vassal", string(s.Attacker), "overlord", string(s.Defender))
		e.sink.FactionMessage(s.Attacker, "You have broken free of your overlord!")
		e.sink.FactionMessage(s.Defender, "Your vassal has won its independence.")
	}
	return true
}

func (e *Engine) finishBreakawayDefense(s *Siege) bool {
	if e.graph.ReleaseVassal(s.Attacker, s.Defender) {
		slog.Info("breakaway defense succeeded",
			"vassal", string(s.Defender), "overlord", string(s.Attacker))
		e.sink.FactionMessage(s.Defender, "You held your ground and won your independence!")
		e.sink.FactionMessage(s.Attacker, "Your vassal has broken free.")
	}
	return true
}

func (e *Engine) broadcastStatus(s *Siege, now time.Time) {
	var text string
	switch {
	case s.State == StateLeaderDown:
		left := e.cfg.LeaderDownGrace - now.Sub(s.lastAttackerSeen)
		if left < 0 {
			left = 0
		}
		text = fmt.Sprintf("Siege on %s: leader down, breaks in %s unless attackers return.", s.Coord, left.Round(time.Second))
	case s.BreakawayDefense && s.holdElapsed > 0:
		left := e.cfg.DefenseThreshold - s.holdElapsed
		text = fmt.Sprintf("Siege on %s: defenders hold, independence in %s.", s.Coord, left.Round(time.Second))
	default:
		left := e.cfg.OffenseThreshold - s.attackElapsed
		text = fmt.Sprintf("Siege on %s: %s until capture.", s.Coord, left.Round(time.Second))
	}
	e.sink.FactionMessage(s.Attacker, text)
	e.sink.FactionMessage(s.Defender, text)
}
