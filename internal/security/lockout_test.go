package security

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGuard(t *testing.T, p Policy) (*LoginGuard, *fakeClock) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	g := NewLoginGuard(ctx, p, log)
	g.now = clock.now

	return g, clock
}

func TestLoginGuard_LocksAfterMaxFailures(t *testing.T) {
	g, _ := newTestGuard(t, Policy{MaxFailures: 3})

	for i := range 2 {
		if g.Fail("10.0.0.1") {
			t.Fatalf("locked after %d failures, want 3", i+1)
		}
	}

	if !g.Fail("10.0.0.1") {
		t.Fatal("expected lockout on third failure")
	}
	if !g.Locked("10.0.0.1") {
		t.Fatal("expected client to be locked")
	}
	if g.Locked("10.0.0.2") {
		t.Fatal("other clients must not be affected")
	}
}

func TestLoginGuard_LockoutExpires(t *testing.T) {
	g, clock := newTestGuard(t, Policy{MaxFailures: 2, Lockout: time.Minute})

	g.Fail("10.0.0.1")
	g.Fail("10.0.0.1")

	clock.advance(59 * time.Second)
	if !g.Locked("10.0.0.1") {
		t.Fatal("expected lockout to hold within the lockout period")
	}

	clock.advance(2 * time.Second)
	if g.Locked("10.0.0.1") {
		t.Fatal("expected lockout to expire")
	}

	if g.Fail("10.0.0.1") {
		t.Fatal("a failure after expiry starts a fresh count")
	}
}

func TestLoginGuard_WindowResetsCount(t *testing.T) {
	g, clock := newTestGuard(t, Policy{MaxFailures: 2, Window: time.Minute})

	g.Fail("10.0.0.1")
	clock.advance(2 * time.Minute)

	if g.Fail("10.0.0.1") {
		t.Fatal("failures outside the window must not accumulate")
	}
}

func TestLoginGuard_SucceedClears(t *testing.T) {
	g, _ := newTestGuard(t, Policy{MaxFailures: 2})

	g.Fail("10.0.0.1")
	g.Succeed("10.0.0.1")

	if g.Fail("10.0.0.1") {
		t.Fatal("success must reset the failure count")
	}
}

func TestLoginGuard_CleanupEvictsStaleAndOverflow(t *testing.T) {
	g, clock := newTestGuard(t, Policy{MaxFailures: 100, Window: time.Minute})

	g.Fail("stale")
	clock.advance(2 * time.Minute)

	for i := range maxClients + 5 {
		g.Fail(fmt.Sprintf("10.1.%d.%d", i/256, i%256))
		clock.advance(time.Microsecond)
	}

	g.cleanup()

	if _, ok := g.clients["stale"]; ok {
		t.Error("stale client must be removed")
	}
	if len(g.clients) != maxClients {
		t.Errorf("clients = %d, want %d", len(g.clients), maxClients)
	}
	if _, ok := g.clients["10.1.0.0"]; ok {
		t.Error("oldest client must be evicted first")
	}
}

func TestNewLoginGuard_Defaults(t *testing.T) {
	g, _ := newTestGuard(t, Policy{})
	if g.policy != DefaultPolicy() {
		t.Errorf("policy = %+v, want defaults", g.policy)
	}
}
