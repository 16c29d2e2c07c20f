package faction

import (
	"errors"
	"testing"
)

func TestCreateEnforcesOneFactionPerPlayer(t *testing.T) {
	r := NewRegistry()

	f, err := r.Create("Iron Pact", "alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := r.ByPlayer("alice"); got != f {
		t.Fatal("reverse index does not resolve the owner")
	}

	if _, err := r.Create("Second", "alice"); !errors.Is(err, ErrAlreadyInFaction) {
		t.Fatalf("second create = %v, want ErrAlreadyInFaction", err)
	}
}

func TestAddMemberRejectsMemberOfOtherFaction(t *testing.T) {
	r := NewRegistry()
	a, _ := r.Create("A", "alice")
	b, _ := r.Create("B", "bob")

	if err := r.AddMember(a.ID, "bob", RoleMember); !errors.Is(err, ErrAlreadyInFaction) {
		t.Fatalf("poach = %v, want ErrAlreadyInFaction", err)
	}
	if got := r.ByPlayer("bob"); got != b {
		t.Fatal("bob's membership changed")
	}
}

func TestDisbandClearsMembershipsAndIsIdempotent(t *testing.T) {
	r := NewRegistry()
	f, _ := r.Create("A", "alice")
	r.AddMember(f.ID, "bob", RoleMember)

	if got := r.Disband(f.ID); got == nil {
		t.Fatal("disband should return the removed faction")
	}
	if r.ByPlayer("alice") != nil || r.ByPlayer("bob") != nil {
		t.Fatal("memberships survived disband")
	}
	if got := r.Disband(f.ID); got != nil {
		t.Fatal("second disband should be a no-op")
	}
}

func TestRemoveMemberOwnerSuccession(t *testing.T) {
	r := NewRegistry()
	f, _ := r.Create("A", "zed")
	r.AddMember(f.ID, "carol", RoleMember)
	r.AddMember(f.ID, "bob", RoleOfficer)

	empty, err := r.RemoveMember(f.ID, "zed")
	if err != nil || empty {
		t.Fatalf("remove owner = %v, %v", empty, err)
	}
	// Ownership passes to the smallest remaining player id.
	if f.OwnerID != "bob" {
		t.Fatalf("new owner = %s, want bob", f.OwnerID)
	}
	if role, _ := f.RoleOf("bob"); role != RoleOwner {
		t.Fatalf("successor role = %s, want owner", role)
	}
}

func TestRemoveLastMemberReportsEmpty(t *testing.T) {
	r := NewRegistry()
	f, _ := r.Create("A", "alice")

	empty, err := r.RemoveMember(f.ID, "alice")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !empty {
		t.Fatal("removing the last member should report empty")
	}
}

func TestFindByNameCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	f, _ := r.Create("Iron Pact", "alice")

	if got := r.FindByName("iron pact"); got != f {
		t.Fatal("case-insensitive lookup failed")
	}
	if got := r.FindByName("nobody"); got != nil {
		t.Fatal("unknown name should return nil")
	}
}

func TestRestoreRebuildsReverseIndex(t *testing.T) {
	r := NewRegistry()
	f := New("f1", "A", "alice")
	f.Members["bob"] = RoleMember

	r.Restore([]*Faction{f})
	if r.ByPlayer("bob") != f {
		t.Fatal("restore did not rebuild the reverse index")
	}
}
