// Package faction provides faction entities, membership roles, and the
// per-role capability permission tables.
package faction

import "fmt"

// FactionID is a unique identifier for a faction (UUID string).
type FactionID string

// PlayerID identifies a player. IDs are minted by the host engine and
// treated as opaque here.
type PlayerID string

// Role is a member's rank within a faction. Higher values outrank lower.
type Role uint8

const (
	RoleMember Role = iota
	RoleOfficer
	RoleOwner
)

var roleNames = map[Role]string{
	RoleMember:  "member",
	RoleOfficer: "officer",
	RoleOwner:   "owner",
}

func (r Role) String() string {
	if n, ok := roleNames[r]; ok {
		return n
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// ParseRole resolves a role name. Unrecognized names are an input error.
func ParseRole(name string) (Role, error) {
	for r, n := range roleNames {
		if n == name {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", name)
}

// Capability is a single permitted action kind checked against a role's
// permission set.
type Capability uint8

const (
	CapBlockBreak Capability = iota
	CapBlockPlace
	CapBlockInteract
	CapContainerOpen
	CapRedstoneToggle
	CapEntityInteract
	CapChunkClaim
	CapChunkOvertake
	CapManageMembers
	CapManagePermissions
	CapManageRelations
)

var capabilityNames = map[Capability]string{
	CapBlockBreak:        "block_break",
	CapBlockPlace:        "block_place",
	CapBlockInteract:     "block_interact",
	CapContainerOpen:     "container_open",
	CapRedstoneToggle:    "redstone_toggle",
	CapEntityInteract:    "entity_interact",
	CapChunkClaim:        "chunk_claim",
	CapChunkOvertake:     "chunk_overtake",
	CapManageMembers:     "manage_members",
	CapManagePermissions: "manage_permissions",
	CapManageRelations:   "manage_relations",
}

func (c Capability) String() string {
	if n, ok := capabilityNames[c]; ok {
		return n
	}
	return fmt.Sprintf("capability(%d)", uint8(c))
}

// ParseCapability resolves a capability name. Unrecognized names are an
// input error.
func ParseCapability(name string) (Capability, error) {
	for c, n := range capabilityNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown permission %q", name)
}

// AllCapabilities returns every known capability.
func AllCapabilities() []Capability {
	caps := make([]Capability, 0, len(capabilityNames))
	for c := range capabilityNames {
		caps = append(caps, c)
	}
	return caps
}

// Faction is a named group of players sharing claims, permissions, and
// diplomatic standing.
type Faction struct {
	ID      FactionID                    `json:"id"`
	Name    string                       `json:"name"`
	OwnerID PlayerID                     `json:"owner_id"`
	Members map[PlayerID]Role            `json:"members"`
	Perms   map[Role]map[Capability]bool `json:"perms"`
}

// New creates a faction with the owner registered and default permission
// tables seeded. Owner and officer roles get every capability; members get
// the reduced default set.
func New(id FactionID, name string, owner PlayerID) *Faction {
	f := &Faction{
		ID:      id,
		Name:    name,
		OwnerID: owner,
		Members: map[PlayerID]Role{owner: RoleOwner},
		Perms:   make(map[Role]map[Capability]bool),
	}
	full := make(map[Capability]bool)
	for _, c := range AllCapabilities() {
		full[c] = true
	}
	officer := make(map[Capability]bool)
	for c := range full {
		officer[c] = true
	}
	f.Perms[RoleOwner] = full
	f.Perms[RoleOfficer] = officer
	f.Perms[RoleMember] = map[Capability]bool{
		CapBlockBreak:     true,
		CapBlockPlace:     true,
		CapBlockInteract:  true,
		CapContainerOpen:  true,
		CapRedstoneToggle: true,
		CapEntityInteract: true,
		CapChunkClaim:     true,
	}
	return f
}

// RoleOf returns the player's role, or false if they are not a member.
func (f *Faction) RoleOf(p PlayerID) (Role, bool) {
	r, ok := f.Members[p]
	return r, ok
}

// HasCapability reports whether the player's role in this faction grants the
// capability. Non-members never have capabilities. There is no inheritance
// between roles; each role's set is checked directly.
func (f *Faction) HasCapability(p PlayerID, c Capability) bool {
	r, ok := f.Members[p]
	if !ok {
		return false
	}
	set, ok := f.Perms[r]
	if !ok {
		return false
	}
	return set[c]
}

// Grant adds a capability to a role's permission set.
func (f *Faction) Grant(r Role, c Capability) {
	set, ok := f.Perms[r]
	if !ok {
		set = make(map[Capability]bool)
		f.Perms[r] = set
	}
	set[c] = true
}

// Revoke removes a capability from a role's permission set.
func (f *Faction) Revoke(r Role, c Capability) {
	if set, ok := f.Perms[r]; ok {
		delete(set, c)
	}
}

// MemberIDs returns all member player ids.
func (f *Faction) MemberIDs() []PlayerID {
	ids := make([]PlayerID, 0, len(f.Members))
	for p := range f.Members {
		ids = append(ids, p)
	}
	return ids
}
