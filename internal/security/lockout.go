// Package security tracks failed authentication attempts per client.
package security

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Default lockout policy.
const (
	DefaultMaxFailures = 10
	DefaultWindow      = 15 * time.Minute
	DefaultLockout     = 5 * time.Minute

	cleanupPeriod = 60 * time.Second
	maxClients    = 10000
)

// Policy bounds how many failures a client may accumulate within Window
// before it is locked out for Lockout.
type Policy struct {
	MaxFailures int
	Window      time.Duration
	Lockout     time.Duration
}

// DefaultPolicy returns the default lockout policy.
func DefaultPolicy() Policy {
	return Policy{MaxFailures: DefaultMaxFailures, Window: DefaultWindow, Lockout: DefaultLockout}
}

type failures struct {
	count    int
	first    time.Time
	lockedAt time.Time
}

func (f *failures) locked(now time.Time, p Policy) bool {
	return !f.lockedAt.IsZero() && now.Sub(f.lockedAt) < p.Lockout
}

func (f *failures) stale(now time.Time, p Policy) bool {
	if !f.lockedAt.IsZero() {
		return now.Sub(f.lockedAt) >= p.Lockout
	}
	return now.Sub(f.first) >= p.Window
}

// LoginGuard locks out clients, identified by IP address, that repeatedly
// present invalid API keys.
type LoginGuard struct {
	policy  Policy
	log     *logrus.Logger
	now     func() time.Time
	mu      sync.Mutex
	clients map[string]*failures
}

// NewLoginGuard creates a guard and starts a cleanup goroutine that stops
// when ctx is cancelled. Zero policy fields fall back to the defaults.
func NewLoginGuard(ctx context.Context, policy Policy, log *logrus.Logger) *LoginGuard {
	def := DefaultPolicy()
	if policy.MaxFailures <= 0 {
		policy.MaxFailures = def.MaxFailures
	}
	if policy.Window <= 0 {
		policy.Window = def.Window
	}
	if policy.Lockout <= 0 {
		policy.Lockout = def.Lockout
	}

	g := &LoginGuard{
		policy:  policy,
		log:     log,
		now:     time.Now,
		clients: make(map[string]*failures),
	}
	go g.cleanupLoop(ctx)

	return g
}

// Locked reports whether client is currently locked out.
func (g *LoginGuard) Locked(client string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	f, ok := g.clients[client]

	return ok && f.locked(g.now(), g.policy)
}

// Fail records a failed attempt and reports whether client is now locked out.
func (g *LoginGuard) Fail(client string) bool {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	f, ok := g.clients[client]
	if !ok || f.stale(now, g.policy) {
		f = &failures{first: now}
		g.clients[client] = f
	}

	f.count++
	if f.count >= g.policy.MaxFailures && f.lockedAt.IsZero() {
		f.lockedAt = now
		g.log.WithFields(logrus.Fields{
			"client_ip": client,
			"failures":  f.count,
			"lockout":   g.policy.Lockout.String(),
		}).Warn("client locked out after repeated authentication failures")
	}

	return f.locked(now, g.policy)
}

// Succeed clears the failure history of client.
func (g *LoginGuard) Succeed(client string) {
	g.mu.Lock()
	delete(g.clients, client)
	g.mu.Unlock()
}

func (g *LoginGuard) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.cleanup()
		}
	}
}

func (g *LoginGuard) cleanup() {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	for k, f := range g.clients {
		if f.stale(now, g.policy) {
			delete(g.clients, k)
		}
	}

	if over := len(g.clients) - maxClients; over > 0 {
		g.evictOldest(over)
	}
}

// evictOldest removes the n clients whose first failure is oldest.
// Caller must hold g.mu.
func (g *LoginGuard) evictOldest(n int) {
	keys := make([]string, 0, len(g.clients))
	for k := range g.clients {
		keys = append(keys, k)
	}

	slices.SortFunc(keys, func(a, b string) int {
		return g.clients[a].first.Compare(g.clients[b].first)
	})

	for _, k := range keys[:n] {
		delete(g.clients, k)
	}
}
