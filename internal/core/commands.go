package core

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/talgya/dominion/internal/claim"
	"github.com/talgya/dominion/internal/faction"
	"github.com/talgya/dominion/internal/relation"
)

// Policy rejections. Well-formed requests the rules disallow; reported to
// the requester, never treated as faults.
var (
	ErrNoFaction       = errors.New("you do not belong to a faction")
	ErrNoPermission    = errors.New("you do not have permission to do that")
	ErrCooldownActive  = errors.New("action is on cooldown")
	ErrAlreadyClaimed  = errors.New("this chunk is already claimed")
	ErrClaimLimit      = errors.New("your faction has reached its claim limit")
	ErrNotYourClaim    = errors.New("this chunk is not claimed by your faction")
	ErrCannotOvertake  = errors.New("chunk cannot be overtaken")
	ErrOwnerOnly       = errors.New("only the faction owner can do that")
	ErrTargetInFaction = errors.New("that player already belongs to a faction")
	ErrNoInvite        = errors.New("you have no pending invite")
	ErrSameFaction     = errors.New("target is in your own faction")
)

// Not-found rejections, distinct from policy.
var (
	ErrFactionNotFound = errors.New("faction not found")
	ErrPlayerNotFound  = errors.New("player not found")
)

// CreateFaction registers a new faction owned by the acting player.
func (s *Service) CreateFaction(name string, owner faction.PlayerID) (*faction.Faction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.Registry.Create(name, owner)
	if err != nil {
		return nil, err
	}
	slog.Info("faction created", "id", string(f.ID), "name", name, "owner", string(owner))
	return f, nil
}

// DisbandFaction removes a faction and cascades: claims in both namespaces,
// relation and vassal edges, sieges it is party to. Idempotent on unknown
// ids.
func (s *Service) DisbandFaction(id faction.FactionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disbandLocked(id)
}

func (s *Service) disbandLocked(id faction.FactionID) {
	f := s.Registry.Disband(id)
	if f == nil {
		return
	}
	for _, c := range s.Ledger.PurgeFaction(id) {
		s.sink.ClaimChanged(c, "", false)
	}
	s.Relations.PurgeFaction(id)
	s.Sieges.Cancel(id)
	for p, inv := range s.invites {
		if inv.Faction == id {
			delete(s.invites, p)
		}
	}
	slog.Info("faction disbanded", "id", string(id), "name", f.Name)
}

// DisbandBy disbands the actor's faction; owner only.
func (s *Service) DisbandBy(actor faction.PlayerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.Registry.ByPlayer(actor)
	if f == nil {
		return ErrNoFaction
	}
	if f.OwnerID != actor {
		return ErrOwnerOnly
	}
	s.disbandLocked(f.ID)
	return nil
}

// RenameFaction changes the actor's faction name; owner only.
func (s *Service) RenameFaction(actor faction.PlayerID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.Registry.ByPlayer(actor)
	if f == nil {
		return ErrNoFaction
	}
	if f.OwnerID != actor {
		return ErrOwnerOnly
	}
	return s.Registry.Rename(f.ID, name)
}

// Invite offers faction membership to a player. Requires manage-members.
// Invites expire after the configured TTL.
func (s *Service) Invite(actor, target faction.PlayerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.Registry.ByPlayer(actor)
	if f == nil {
		return ErrNoFaction
	}
	if !f.HasCapability(actor, faction.CapManageMembers) {
		return ErrNoPermission
	}
	if s.Registry.ByPlayer(target) != nil {
		return ErrTargetInFaction
	}
	s.invites[target] = invite{Faction: f.ID, Expires: s.now().Add(s.cfg.InviteTTL)}
	s.sink.PlayerMessage(target, fmt.Sprintf("You have been invited to join %s.", f.Name))
	return nil
}

// AcceptInvite joins the player to the inviting faction at member rank.
func (s *Service) AcceptInvite(target faction.PlayerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invites[target]
	if !ok || s.now().After(inv.Expires) {
		delete(s.invites, target)
		return ErrNoInvite
	}
	if err := s.Registry.AddMember(inv.Faction, target, faction.RoleMember); err != nil {
		return err
	}
	delete(s.invites, target)
	if f := s.Registry.ByID(inv.Faction); f != nil {
		s.sink.FactionMessage(f.ID, fmt.Sprintf("%s has joined the faction.", target))
	}
	return nil
}

// Leave removes the actor from their faction. Ownership passes to the
// lowest member id if the owner leaves; an emptied faction is disbanded.
func (s *Service) Leave(actor faction.PlayerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.Registry.ByPlayer(actor)
	if f == nil {
		return ErrNoFaction
	}
	empty, err := s.Registry.RemoveMember(f.ID, actor)
	if err != nil {
		return err
	}
	if empty {
		s.disbandLocked(f.ID)
	}
	return nil
}

// Kick removes another member. Requires manage-members; the owner cannot be
// kicked.
func (s *Service) Kick(actor, target faction.PlayerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.Registry.ByPlayer(actor)
	if f == nil {
		return ErrNoFaction
	}
	if !f.HasCapability(actor, faction.CapManageMembers) {
		return ErrNoPermission
	}
	if _, member := f.RoleOf(target); !member {
		return faction.ErrNotAMember
	}
	if target == f.OwnerID {
		return ErrOwnerOnly
	}
	empty, err := s.Registry.RemoveMember(f.ID, target)
	if err != nil {
		return err
	}
	if empty {
		s.disbandLocked(f.ID)
	}
	return nil
}

// SetRole changes a member's role. Owner only; the owner's own role is
// fixed.
func (s *Service) SetRole(actor, target faction.PlayerID, roleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.Registry.ByPlayer(actor)
	if f == nil {
		return ErrNoFaction
	}
	if f.OwnerID != actor {
		return ErrOwnerOnly
	}
	if target == f.OwnerID {
		return ErrOwnerOnly
	}
	role, err := faction.ParseRole(roleName)
	if err != nil {
		return err
	}
	if role == faction.RoleOwner {
		return ErrOwnerOnly
	}
	return s.Registry.SetRole(f.ID, target, role)
}

// SetPermission grants or revokes a capability on a role. Requires
// manage-permissions. Unknown role or capability names fail the request.
func (s *Service) SetPermission(actor faction.PlayerID, roleName, capName string, grant bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.Registry.ByPlayer(actor)
	if f == nil {
		return ErrNoFaction
	}
	if !f.HasCapability(actor, faction.CapManagePermissions) {
		return ErrNoPermission
	}
	role, err := faction.ParseRole(roleName)
	if err != nil {
		return err
	}
	cap, err := faction.ParseCapability(capName)
	if err != nil {
		return err
	}
	if grant {
		f.Grant(role, cap)
	} else {
		f.Revoke(role, cap)
	}
	return nil
}

// SetRelation sets ally or war with a faction looked up by name. Requires
// manage-relations. Name lookup is first-match and ambiguous when names
// collide.
func (s *Service) SetRelation(actor faction.PlayerID, targetName, kindName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.Registry.ByPlayer(actor)
	if f == nil {
		return ErrNoFaction
	}
	if !f.HasCapability(actor, faction.CapManageRelations) {
		return ErrNoPermission
	}
	target := s.Registry.FindByName(targetName)
	if target == nil {
		return ErrFactionNotFound
	}
	if target.ID == f.ID {
		return ErrSameFaction
	}
	kind, err := relation.ParseKind(kindName)
	if err != nil {
		return err
	}
	if err := s.Relations.Set(f.ID, target.ID, kind); err != nil {
		return err
	}
	s.sink.FactionMessage(f.ID, fmt.Sprintf("Relation with %s is now %s.", target.Name, kind))
	s.sink.FactionMessage(target.ID, fmt.Sprintf("%s has declared %s.", f.Name, kind))
	return nil
}

// ClearRelation returns the pair to neutral. Requires manage-relations.
// Idempotent.
func (s *Service) ClearRelation(actor faction.PlayerID, targetName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.Registry.ByPlayer(actor)
	if f == nil {
		return ErrNoFaction
	}
	if !f.HasCapability(actor, faction.CapManageRelations) {
		return ErrNoPermission
	}
	target := s.Registry.FindByName(targetName)
	if target == nil {
		return ErrFactionNotFound
	}
	s.Relations.Clear(f.ID, target.ID)
	return nil
}

// SetVassal binds a vassal under an overlord. Host/admin surface, not a
// player command.
func (s *Service) SetVassal(overlord, vassal faction.FactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Registry.ByID(overlord) == nil || s.Registry.ByID(vassal) == nil {
		return ErrFactionNotFound
	}
	return s.Relations.SetVassal(overlord, vassal)
}

// StartBreakaway activates a vassal's breakaway war against its overlord
// and puts the pair at war.
func (s *Service) StartBreakaway(actor faction.PlayerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.Registry.ByPlayer(actor)
	if f == nil {
		return ErrNoFaction
	}
	if !f.HasCapability(actor, faction.CapManageRelations) {
		return ErrNoPermission
	}
	overlord, ok := s.Relations.OverlordOf(f.ID)
	if !ok {
		return errors.New("your faction has no overlord")
	}
	if !s.Relations.StartBreakaway(f.ID) {
		return errors.New("your faction has no overlord")
	}
	if err := s.Relations.Set(f.ID, overlord, relation.War); err != nil {
		return err
	}
	s.sink.FactionMessage(f.ID, "Your breakaway war has begun.")
	s.sink.FactionMessage(overlord, fmt.Sprintf("%s is fighting for independence!", f.Name))
	return nil
}

// Claim assigns the chunk to the actor's faction, subject to capability,
// cooldown, and capacity policy.
func (s *Service) Claim(actor faction.PlayerID, c claim.Coord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claimLocked(actor, c, claim.CooldownAction)
}

func (s *Service) claimLocked(actor faction.PlayerID, c claim.Coord, kind claim.CooldownKind) error {
	f := s.Registry.ByPlayer(actor)
	if f == nil {
		return ErrNoFaction
	}
	if !f.HasCapability(actor, faction.CapChunkClaim) {
		return ErrNoPermission
	}
	cd := s.cfg.AutoClaimCooldown
	if kind == claim.CooldownAction {
		cd = s.actionCooldown(f, actor)
	}
	if s.cooldowns.Remaining(actor, kind, cd) > 0 {
		return ErrCooldownActive
	}
	if !s.Ledger.Claim(c, f.ID) {
		if s.Ledger.IsClaimed(c) {
			return ErrAlreadyClaimed
		}
		if _, safe := s.Ledger.SafeZoneOwner(c); safe {
			return ErrAlreadyClaimed
		}
		return ErrClaimLimit
	}
	// The cooldown stamps only on success; a rejected attempt does not
	// rate-limit the next one.
	s.cooldowns.Try(actor, kind, cd)
	s.sink.ClaimChanged(c, f.ID, true)
	slog.Info("chunk claimed", "faction", string(f.ID), "coord", c.String())
	return nil
}

// Unclaim releases a chunk the actor's faction owns.
func (s *Service) Unclaim(actor faction.PlayerID, c claim.Coord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.Registry.ByPlayer(actor)
	if f == nil {
		return ErrNoFaction
	}
	if !f.HasCapability(actor, faction.CapChunkClaim) {
		return ErrNoPermission
	}
	cd := s.actionCooldown(f, actor)
	if s.cooldowns.Remaining(actor, claim.CooldownAction, cd) > 0 {
		return ErrCooldownActive
	}
	if !s.Ledger.Unclaim(c, f.ID) {
		return ErrNotYourClaim
	}
	s.cooldowns.Try(actor, claim.CooldownAction, cd)
	s.sink.ClaimChanged(c, "", false)
	return nil
}

// Overtake forcibly reassigns an enemy chunk. Requires chunk-overtake and
// an active war with the owner. A vassal overtaking its overlord under an
// active breakaway advances the breakaway war.
func (s *Service) Overtake(actor faction.PlayerID, c claim.Coord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.Registry.ByPlayer(actor)
	if f == nil {
		return ErrNoFaction
	}
	if !f.HasCapability(actor, faction.CapChunkOvertake) {
		return ErrNoPermission
	}
	owner, claimed := s.Ledger.OwnerOf(c)
	if !s.Ledger.Overtake(c, f.ID) {
		switch {
		case !claimed:
			return ErrNotYourClaim
		case owner == f.ID:
			return ErrSameFaction
		case !s.Relations.IsAtWar(f.ID, owner):
			return ErrCannotOvertake
		default:
			return ErrClaimLimit
		}
	}
	s.sink.ClaimChanged(c, f.ID, true)
	slog.Info("chunk overtaken", "faction", string(f.ID), "from", string(owner), "coord", c.String())

	if s.Relations.RecordBreakawayCapture(f.ID, owner) {
		s.sink.FactionMessage(f.ID, "You have broken free of your overlord!")
		s.sink.FactionMessage(owner, "Your vassal has won its independence.")
	}
	return nil
}

// SetAutoClaim toggles auto-claim on movement for the player.
func (s *Service) SetAutoClaim(p faction.PlayerID, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if enabled {
		s.autoClaim[p] = true
	} else {
		delete(s.autoClaim, p)
	}
}

// HandleMove is called when a player crosses into a new chunk. Fires
// auto-claim when enabled, off cooldown, outside safe and war zones, and
// the chunk is unclaimed. Auto-claim failures are silent; movement is not
// a request.
func (s *Service) HandleMove(p faction.PlayerID, c claim.Coord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.lastChunk[p]; ok && last == c {
		return
	}
	s.lastChunk[p] = c

	if !s.autoClaim[p] {
		return
	}
	if s.Zones != nil && !s.Zones.AutoClaimAllowed(c) {
		return
	}
	if s.Ledger.IsClaimed(c) {
		return
	}
	if err := s.claimLocked(p, c, claim.CooldownAuto); err != nil {
		if errors.Is(err, ErrClaimLimit) {
			s.sink.PlayerMessage(p, ErrClaimLimit.Error())
		}
		return
	}
	s.sink.PlayerMessage(p, fmt.Sprintf("Auto-claimed %s.", c))
}

// StartSiege begins a siege on the chunk by the actor's faction, with the
// actor as channeling leader.
func (s *Service) StartSiege(actor faction.PlayerID, world string, c claim.Coord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.Registry.ByPlayer(actor)
	if f == nil {
		return ErrNoFaction
	}
	if !f.HasCapability(actor, faction.CapChunkOvertake) {
		return ErrNoPermission
	}
	return s.Sieges.Start(f.ID, actor, world, c)
}

// AbandonSiege withdraws the actor's faction from its attacking siege.
func (s *Service) AbandonSiege(actor faction.PlayerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.Registry.ByPlayer(actor)
	if f == nil {
		return ErrNoFaction
	}
	if !f.HasCapability(actor, faction.CapChunkOvertake) {
		return ErrNoPermission
	}
	return s.Sieges.Abandon(f.ID)
}

// HandlePlayerKilled feeds kill events into active sieges: a defender
// killing a siege's channeling leader starts the defense grace window.
func (s *Service) HandlePlayerKilled(victim, killer faction.PlayerID) {
	s.Teleports.HandleDisconnect(victim)
	kf := s.Registry.ByPlayer(killer)
	if kf == nil {
		return
	}
	s.Sieges.HandleAttackerKilled(victim, kf.ID)
}

// StartHomeTeleport begins channeling a teleport to a chunk the actor's
// faction owns.
func (s *Service) StartHomeTeleport(actor faction.PlayerID, dest claim.Coord) error {
	f := s.Registry.ByPlayer(actor)
	if f == nil {
		return ErrNoFaction
	}
	return s.Teleports.Start(actor, f.ID, dest)
}

// HandleCombat cancels any teleport channel for the player.
func (s *Service) HandleCombat(p faction.PlayerID) {
	s.Teleports.HandleCombat(p)
}

// HandleDisconnect drops all per-player ephemeral state.
func (s *Service) HandleDisconnect(p faction.PlayerID) {
	s.Teleports.HandleDisconnect(p)
	s.cooldowns.Forget(p)
	s.mu.Lock()
	delete(s.lastChunk, p)
	s.mu.Unlock()
}

// MarkSafeZone marks a chunk as a protected safe-zone claim for a faction.
// Admin surface; safe-zone claims are excluded from war and overtake.
func (s *Service) MarkSafeZone(id faction.FactionID, c claim.Coord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Registry.ByID(id) == nil {
		return ErrFactionNotFound
	}
	if !s.Ledger.ClaimSafeZone(c, id) {
		return ErrAlreadyClaimed
	}
	return nil
}
