package claim

import (
	"testing"
	"time"
)

func TestCooldownTryAndExpiry(t *testing.T) {
	now := time.Now()
	tr := NewCooldownTracker()
	tr.SetClock(func() time.Time { return now })

	if !tr.Try("p", CooldownAction, 10*time.Second) {
		t.Fatal("first try should succeed")
	}
	if tr.Try("p", CooldownAction, 10*time.Second) {
		t.Fatal("second try inside the window should fail")
	}
	if rem := tr.Remaining("p", CooldownAction, 10*time.Second); rem != 10*time.Second {
		t.Fatalf("remaining = %s, want 10s", rem)
	}

	now = now.Add(10 * time.Second)
	if rem := tr.Remaining("p", CooldownAction, 10*time.Second); rem != 0 {
		t.Fatalf("remaining after expiry = %s, want 0", rem)
	}
	if !tr.Try("p", CooldownAction, 10*time.Second) {
		t.Fatal("try after expiry should succeed")
	}
}

func TestCooldownKindsAreIndependent(t *testing.T) {
	now := time.Now()
	tr := NewCooldownTracker()
	tr.SetClock(func() time.Time { return now })

	if !tr.Try("p", CooldownAction, time.Minute) {
		t.Fatal("action try failed")
	}
	if !tr.Try("p", CooldownAuto, time.Minute) {
		t.Fatal("auto cooldown should not be blocked by the action cooldown")
	}
}

func TestCooldownForget(t *testing.T) {
	now := time.Now()
	tr := NewCooldownTracker()
	tr.SetClock(func() time.Time { return now })

	tr.Try("p", CooldownAction, time.Minute)
	tr.Forget("p")
	if !tr.Try("p", CooldownAction, time.Minute) {
		t.Fatal("try after forget should succeed")
	}
}
