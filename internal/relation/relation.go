// Package relation tracks diplomatic state between faction pairs: symmetric
// neutral/ally/war edges plus asymmetric overlord/vassal bonds and their
// breakaway wars.
package relation

import (
	"errors"
	"fmt"
	"sync"

	"github.com/talgya/dominion/internal/faction"
)

// Kind is the symmetric diplomatic state between two factions. Neutral is
// represented by an absent edge.
type Kind uint8

const (
	Neutral Kind = iota
	Ally
	War
)

var kindNames = map[Kind]string{
	Neutral: "neutral",
	Ally:    "ally",
	War:     "war",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("relation(%d)", uint8(k))
}

// ParseKind resolves a relation name. Only ally and war are settable;
// neutral is reached by clearing.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "ally":
		return Ally, nil
	case "war":
		return War, nil
	}
	return 0, fmt.Errorf("unknown relation %q", name)
}

var (
	ErrSelfRelation = errors.New("faction cannot hold a relation with itself")
	ErrNeutralSet   = errors.New("neutral is set by clearing the relation")
)

// Edge is one directed half of a symmetric relation, used for persistence
// snapshots.
type Edge struct {
	A, B faction.FactionID
	Kind Kind
}

// VassalEdge records an overlord/vassal bond and breakaway-war progress.
type VassalEdge struct {
	Vassal          faction.FactionID
	Overlord        faction.FactionID
	BreakawayActive bool
	Captures        int
}

// Graph holds all diplomatic edges. Symmetric relations are stored as two
// mirrored directed entries kept in lock-step. Thread-safe: protected by mu.
type Graph struct {
	mu    sync.RWMutex
	edges map[faction.FactionID]map[faction.FactionID]Kind

	// vassal id → bond. One overlord per vassal.
	vassals map[faction.FactionID]*VassalEdge

	// Successful overtakes a vassal needs against its overlord to win a
	// breakaway war outright.
	capturesToBreak int
}

// NewGraph creates an empty graph. capturesToBreak is the number of claim
// captures that completes an offensive breakaway.
func NewGraph(capturesToBreak int) *Graph {
	if capturesToBreak <= 0 {
		capturesToBreak = 3
	}
	return &Graph{
		edges:           make(map[faction.FactionID]map[faction.FactionID]Kind),
		vassals:         make(map[faction.FactionID]*VassalEdge),
		capturesToBreak: capturesToBreak,
	}
}

// Set writes both directed mirrors of a symmetric relation.
func (g *Graph) Set(a, b faction.FactionID, k Kind) error {
	if a == b {
		return ErrSelfRelation
	}
	if k == Neutral {
		return ErrNeutralSet
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.setDirected(a, b, k)
	g.setDirected(b, a, k)
	return nil
}

func (g *Graph) setDirected(from, to faction.FactionID, k Kind) {
	m, ok := g.edges[from]
	if !ok {
		m = make(map[faction.FactionID]Kind)
		g.edges[from] = m
	}
	m[to] = k
}

// Clear removes both mirrors, returning the pair to neutral. Idempotent.
func (g *Graph) Clear(a, b faction.FactionID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clearDirected(a, b)
	g.clearDirected(b, a)
}

func (g *Graph) clearDirected(from, to faction.FactionID) {
	if m, ok := g.edges[from]; ok {
		delete(m, to)
		if len(m) == 0 {
			delete(g.edges, from)
		}
	}
}

// Relation returns the symmetric state for a pair, defaulting to neutral.
func (g *Graph) Relation(a, b faction.FactionID) Kind {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if m, ok := g.edges[a]; ok {
		return m[b]
	}
	return Neutral
}

// IsAtWar reports whether the two factions are at war.
func (g *Graph) IsAtWar(a, b faction.FactionID) bool {
	return g.Relation(a, b) == War
}

// IsAlly reports whether the two factions are allied.
func (g *Graph) IsAlly(a, b faction.FactionID) bool {
	return g.Relation(a, b) == Ally
}

// SetVassal records an overlord/vassal bond. Replaces any existing bond for
// the vassal.
func (g *Graph) SetVassal(overlord, vassal faction.FactionID) error {
	if overlord == vassal {
		return ErrSelfRelation
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.vassals[vassal] = &VassalEdge{Vassal: vassal, Overlord: overlord}
	return nil
}

// OverlordOf returns the vassal's overlord, or false when the faction is not
// a vassal.
func (g *Graph) OverlordOf(vassal faction.FactionID) (faction.FactionID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.vassals[vassal]
	if !ok {
		return "", false
	}
	return v.Overlord, true
}

// StartBreakaway marks the vassal's breakaway war against its overlord as
// active and resets capture progress. Returns false when the faction has no
// overlord.
func (g *Graph) StartBreakaway(vassal faction.FactionID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.vassals[vassal]
	if !ok {
		return false
	}
	v.BreakawayActive = true
	v.Captures = 0
	return true
}

// IsBreakawayActive reports whether the vassal has an ongoing breakaway war.
func (g *Graph) IsBreakawayActive(vassal faction.FactionID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.vassals[vassal]
	return ok && v.BreakawayActive
}

// RecordBreakawayCapture increments breakaway progress when a vassal
// (attacker) overtakes a claim from its overlord (defender) under an active
// breakaway war. Returns true when the configured capture count is reached,
// at which point the bond is cleared and the vassal is independent.
func (g *Graph) RecordBreakawayCapture(attacker, defender faction.FactionID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.vassals[attacker]
	if !ok || !v.BreakawayActive || v.Overlord != defender {
		return false
	}
	v.Captures++
	if v.Captures >= g.capturesToBreak {
		delete(g.vassals, attacker)
		return true
	}
	return false
}

// ReleaseVassal clears the bond outright (defensive breakaway success).
// Returns false when no such bond exists.
func (g *Graph) ReleaseVassal(overlord, vassal faction.FactionID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.vassals[vassal]
	if !ok || v.Overlord != overlord {
		return false
	}
	delete(g.vassals, vassal)
	return true
}

// PurgeFaction removes every symmetric edge and vassal bond touching the
// faction. Called on disband.
func (g *Graph) PurgeFaction(id faction.FactionID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for other := range g.edges[id] {
		g.clearDirected(other, id)
	}
	delete(g.edges, id)

	for vassal, v := range g.vassals {
		if vassal == id || v.Overlord == id {
			delete(g.vassals, vassal)
		}
	}
}

// Edges returns a snapshot of every directed edge.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Edge
	for a, m := range g.edges {
		for b, k := range m {
			out = append(out, Edge{A: a, B: b, Kind: k})
		}
	}
	return out
}

// VassalEdges returns a snapshot of every bond.
func (g *Graph) VassalEdges() []VassalEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]VassalEdge, 0, len(g.vassals))
	for _, v := range g.vassals {
		out = append(out, *v)
	}
	return out
}

// Restore loads edges and bonds wholesale, replacing current state.
func (g *Graph) Restore(edges []Edge, vassals []VassalEdge) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.edges = make(map[faction.FactionID]map[faction.FactionID]Kind)
	for _, e := range edges {
		g.setDirected(e.A, e.B, e.Kind)
	}
	g.vassals = make(map[faction.FactionID]*VassalEdge, len(vassals))
	for i := range vassals {
		v := vassals[i]
		g.vassals[v.Vassal] = &v
	}
}
