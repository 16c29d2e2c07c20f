package claim

import (
	"sync"
	"time"

	"github.com/talgya/dominion/internal/faction"
)

// CooldownKind separates the manual claim/unclaim cooldown from the
// auto-claim cooldown; the two timers are independent.
type CooldownKind uint8

const (
	CooldownAction CooldownKind = iota
	CooldownAuto
)

// CooldownTracker rate-limits claim actions per player. Entries are
// independent per player, so a mutex-guarded map suffices; there is no
// cross-player coordination. The duration is computed by the caller (base
// reduced per faction level, multiplied for owners) and passed in.
type CooldownTracker struct {
	mu      sync.Mutex
	entries map[faction.PlayerID][2]time.Time
	now     func() time.Time
}

// NewCooldownTracker creates a tracker using the real clock.
func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{
		entries: make(map[faction.PlayerID][2]time.Time),
		now:     time.Now,
	}
}

// SetClock overrides the clock. Test hook.
func (t *CooldownTracker) SetClock(now func() time.Time) {
	t.now = now
}

// Try reports whether the player's cooldown of the given kind has elapsed
// and, if so, restamps it. Check and restamp are atomic under mu.
func (t *CooldownTracker) Try(p faction.PlayerID, kind CooldownKind, d time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	stamps := t.entries[p]
	last := stamps[kind]
	if !last.IsZero() && now.Sub(last) < d {
		return false
	}
	stamps[kind] = now
	t.entries[p] = stamps
	return true
}

// Remaining returns how long until the cooldown elapses, zero when ready.
func (t *CooldownTracker) Remaining(p faction.PlayerID, kind CooldownKind, d time.Duration) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	last := t.entries[p][kind]
	if last.IsZero() {
		return 0
	}
	rem := d - t.now().Sub(last)
	if rem < 0 {
		return 0
	}
	return rem
}

// Forget drops a player's cooldown state (disconnect cleanup).
func (t *CooldownTracker) Forget(p faction.PlayerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, p)
}
