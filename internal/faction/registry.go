package faction

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Registry errors.
var (
	ErrAlreadyInFaction = errors.New("player already belongs to a faction")
	ErrNotInFaction     = errors.New("player does not belong to a faction")
	ErrFactionNotFound  = errors.New("faction not found")
	ErrNotAMember       = errors.New("player is not a member of this faction")
)

// Registry owns all faction entities and the player→faction reverse index.
// Thread-safe: protected by mu.
//
// Faction name uniqueness is NOT enforced; FindByName returns the first
// case-insensitive match, so name-based lookup is ambiguous when names
// collide. Known limitation.
type Registry struct {
	mu       sync.RWMutex
	factions map[FactionID]*Faction
	byPlayer map[PlayerID]FactionID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factions: make(map[FactionID]*Faction),
		byPlayer: make(map[PlayerID]FactionID),
	}
}

// Create registers a new faction owned by the given player. Fails if the
// player already belongs to a faction.
func (r *Registry) Create(name string, owner PlayerID) (*Faction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byPlayer[owner]; taken {
		return nil, ErrAlreadyInFaction
	}

	f := New(FactionID(uuid.NewString()), name, owner)
	r.factions[f.ID] = f
	r.byPlayer[owner] = f.ID
	return f, nil
}

// Disband removes the faction and all of its memberships from the reverse
// index. Idempotent: disbanding an unknown id is a no-op. The returned
// faction (nil if unknown) lets the caller cascade claim and relation
// cleanup.
func (r *Registry) Disband(id FactionID) *Faction {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.factions[id]
	if !ok {
		return nil
	}
	for p := range f.Members {
		delete(r.byPlayer, p)
	}
	delete(r.factions, id)
	return f
}

// ByID returns the faction with the given id, or nil.
func (r *Registry) ByID(id FactionID) *Faction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.factions[id]
}

// ByPlayer returns the faction the player belongs to, or nil.
func (r *Registry) ByPlayer(p PlayerID) *Faction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPlayer[p]
	if !ok {
		return nil
	}
	return r.factions[id]
}

// FindByName returns the first faction whose name matches case-insensitively,
// or nil.
func (r *Registry) FindByName(name string) *Faction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.factions {
		if strings.EqualFold(f.Name, name) {
			return f
		}
	}
	return nil
}

// Rename changes a faction's display name.
func (r *Registry) Rename(id FactionID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.factions[id]
	if !ok {
		return ErrFactionNotFound
	}
	f.Name = name
	return nil
}

// AddMember joins a player to the faction at the given role. Fails if the
// player already belongs to any faction.
func (r *Registry) AddMember(id FactionID, p PlayerID, role Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.factions[id]
	if !ok {
		return ErrFactionNotFound
	}
	if _, taken := r.byPlayer[p]; taken {
		return ErrAlreadyInFaction
	}
	f.Members[p] = role
	r.byPlayer[p] = id
	return nil
}

// SetRole changes a member's role. Capability checks are the caller's
// responsibility.
func (r *Registry) SetRole(id FactionID, p PlayerID, role Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.factions[id]
	if !ok {
		return ErrFactionNotFound
	}
	if _, member := f.Members[p]; !member {
		return ErrNotAMember
	}
	f.Members[p] = role
	return nil
}

// RemoveMember drops a player from the faction. If the owner is removed and
// members remain, ownership passes to the lexicographically smallest member
// id. Returns true when the faction is left empty; the caller should disband
// it.
func (r *Registry) RemoveMember(id FactionID, p PlayerID) (empty bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.factions[id]
	if !ok {
		return false, ErrFactionNotFound
	}
	if _, member := f.Members[p]; !member {
		return false, ErrNotAMember
	}
	delete(f.Members, p)
	delete(r.byPlayer, p)

	if len(f.Members) == 0 {
		return true, nil
	}
	if f.OwnerID == p {
		ids := f.MemberIDs()
		slices.Sort(ids)
		f.OwnerID = ids[0]
		f.Members[f.OwnerID] = RoleOwner
	}
	return false, nil
}

// All returns a snapshot slice of every faction.
func (r *Registry) All() []*Faction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Faction, 0, len(r.factions))
	for _, f := range r.factions {
		out = append(out, f)
	}
	return out
}

// Restore loads factions wholesale, rebuilding the reverse index. Used when
// loading persisted state at startup.
func (r *Registry) Restore(factions []*Faction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factions = make(map[FactionID]*Faction, len(factions))
	r.byPlayer = make(map[PlayerID]FactionID)
	for _, f := range factions {
		r.factions[f.ID] = f
		for p := range f.Members {
			r.byPlayer[p] = f.ID
		}
	}
}
