// Package claim maps land-unit coordinates to owning factions and enforces
// capacity and cooldown policy. Normal claims and safe-zone claims are
// disjoint namespaces over the same coordinate key.
package claim

import (
	"fmt"
	"sync"

	"github.com/talgya/dominion/internal/faction"
)

// Coord is a land-unit (chunk) coordinate.
type Coord struct {
	X int `json:"x"`
	Z int `json:"z"`
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d, %d)", c.X, c.Z)
}

// CapacitySource reports how many claims a faction may hold. Implemented by
// the core service, which derives capacity from member count and config.
type CapacitySource interface {
	ClaimCapacity(id faction.FactionID) int
}

// WarSource answers whether two factions are at war. Implemented by the
// relation graph.
type WarSource interface {
	IsAtWar(a, b faction.FactionID) bool
}

// Ledger owns both claim namespaces. Thread-safe: protected by mu, so the
// ownership check and reassignment in Overtake cannot interleave with a
// concurrent Claim or Unclaim on the same coordinate.
type Ledger struct {
	mu     sync.RWMutex
	claims map[Coord]faction.FactionID
	safe   map[Coord]faction.FactionID
	counts map[faction.FactionID]int

	capacity CapacitySource
	wars     WarSource
}

// NewLedger creates an empty ledger.
func NewLedger(capacity CapacitySource, wars WarSource) *Ledger {
	return &Ledger{
		claims:   make(map[Coord]faction.FactionID),
		safe:     make(map[Coord]faction.FactionID),
		counts:   make(map[faction.FactionID]int),
		capacity: capacity,
		wars:     wars,
	}
}

// Claim assigns an unclaimed coordinate to the faction. Returns false when
// the coordinate is taken in either namespace or the faction is at its
// capacity; callers distinguish the two by re-querying ownership and
// capacity.
func (l *Ledger) Claim(c Coord, id faction.FactionID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, taken := l.claims[c]; taken {
		return false
	}
	if _, taken := l.safe[c]; taken {
		return false
	}
	if l.counts[id] >= l.capacity.ClaimCapacity(id) {
		return false
	}
	l.claims[c] = id
	l.counts[id]++
	return true
}

// Unclaim releases a coordinate. Succeeds only when the coordinate is
// currently owned by exactly that faction.
func (l *Ledger) Unclaim(c Coord, id faction.FactionID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	owner, ok := l.claims[c]
	if !ok || owner != id {
		return false
	}
	delete(l.claims, c)
	l.decrement(owner)
	return true
}

// Overtake reassigns a coordinate owned by an enemy faction. Succeeds only
// when the current owner differs, the factions are at war, and capacity
// allows it. The check and the reassignment are atomic under mu.
func (l *Ledger) Overtake(c Coord, id faction.FactionID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	owner, ok := l.claims[c]
	if !ok || owner == id {
		return false
	}
	if !l.wars.IsAtWar(id, owner) {
		return false
	}
	if l.counts[id] >= l.capacity.ClaimCapacity(id) {
		return false
	}
	l.claims[c] = id
	l.decrement(owner)
	l.counts[id]++
	return true
}

func (l *Ledger) decrement(id faction.FactionID) {
	if l.counts[id] > 1 {
		l.counts[id]--
	} else {
		delete(l.counts, id)
	}
}

// OwnerOf returns the owner of a coordinate in the normal namespace.
func (l *Ledger) OwnerOf(c Coord) (faction.FactionID, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.claims[c]
	return id, ok
}

// IsClaimed reports whether the coordinate is claimed in the normal
// namespace.
func (l *Ledger) IsClaimed(c Coord) bool {
	_, ok := l.OwnerOf(c)
	return ok
}

// ClaimSafeZone marks a coordinate as a protected safe-zone claim. Safe-zone
// claims have no war or overtake semantics.
func (l *Ledger) ClaimSafeZone(c Coord, id faction.FactionID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, taken := l.claims[c]; taken {
		return false
	}
	if _, taken := l.safe[c]; taken {
		return false
	}
	l.safe[c] = id
	return true
}

// UnclaimSafeZone releases a safe-zone claim owned by the faction.
func (l *Ledger) UnclaimSafeZone(c Coord, id faction.FactionID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	owner, ok := l.safe[c]
	if !ok || owner != id {
		return false
	}
	delete(l.safe, c)
	return true
}

// SafeZoneOwner returns the owner of a safe-zone claim.
func (l *Ledger) SafeZoneOwner(c Coord) (faction.FactionID, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.safe[c]
	return id, ok
}

// Count returns the faction's current normal-claim count.
func (l *Ledger) Count(id faction.FactionID) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counts[id]
}

// Capacity returns the faction's current claim cap.
func (l *Ledger) Capacity(id faction.FactionID) int {
	return l.capacity.ClaimCapacity(id)
}

// ClaimsOf returns every normal-namespace coordinate the faction owns.
func (l *Ledger) ClaimsOf(id faction.FactionID) []Coord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Coord
	for c, owner := range l.claims {
		if owner == id {
			out = append(out, c)
		}
	}
	return out
}

// PurgeFaction removes every claim the faction owns in both namespaces and
// returns the removed normal-namespace coordinates so the caller can emit
// claim-changed notifications.
func (l *Ledger) PurgeFaction(id faction.FactionID) []Coord {
	l.mu.Lock()
	defer l.mu.Unlock()

	var removed []Coord
	for c, owner := range l.claims {
		if owner == id {
			delete(l.claims, c)
			removed = append(removed, c)
		}
	}
	delete(l.counts, id)
	for c, owner := range l.safe {
		if owner == id {
			delete(l.safe, c)
		}
	}
	return removed
}

// All returns snapshots of both namespaces for persistence.
func (l *Ledger) All() (claims, safe map[Coord]faction.FactionID) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	claims = make(map[Coord]faction.FactionID, len(l.claims))
	for c, id := range l.claims {
		claims[c] = id
	}
	safe = make(map[Coord]faction.FactionID, len(l.safe))
	for c, id := range l.safe {
		safe[c] = id
	}
	return claims, safe
}

// Restore loads both namespaces wholesale, rebuilding counts.
func (l *Ledger) Restore(claims, safe map[Coord]faction.FactionID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.claims = make(map[Coord]faction.FactionID, len(claims))
	l.counts = make(map[faction.FactionID]int)
	for c, id := range claims {
		l.claims[c] = id
		l.counts[id]++
	}
	l.safe = make(map[Coord]faction.FactionID, len(safe))
	for c, id := range safe {
		l.safe[c] = id
	}
}
