// Package reward enforces at-most-once reward issuance and orchestrates
// the score → reserve → issue → finalize pipeline.
package reward

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/open-format/rewarder/internal/model"
	"github.com/open-format/rewarder/internal/store"
)

// identityNamespace is the fixed UUID namespace for message identities.
// Changing it invalidates every stored processed-record key.
var identityNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// IdentityOf derives the stable processed-record key for a message. The
// derivation uses only immutable fields — platform message id, evaluating
// agent id, author id — so repeated fetches of the same logical message
// always map to the same key regardless of content edits.
func IdentityOf(messageID, agentID, authorID string) uuid.UUID {
	name := messageID + "-" + agentID + "-" + authorID + "-reward"
	return uuid.NewSHA1(identityNamespace, []byte(name))
}

// Guard is the idempotency layer over a Store. For backends whose Reserve
// is natively atomic (Redis SETNX, Postgres ON CONFLICT) the per-key lock
// only serializes the reserve/release window; for plain read-then-write
// backends it is what makes check-and-reserve atomic. Locks are scoped per
// key, so distinct messages never contend.
type Guard struct {
	store store.Store

	mu    sync.Mutex
	locks map[uuid.UUID]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

// NewGuard wraps a store with per-key reservation serialization.
func NewGuard(s store.Store) *Guard {
	return &Guard{store: s, locks: make(map[uuid.UUID]*keyLock)}
}

func (g *Guard) acquire(key uuid.UUID) *keyLock {
	g.mu.Lock()
	l, ok := g.locks[key]
	if !ok {
		l = &keyLock{}
		g.locks[key] = l
	}
	l.refs++
	g.mu.Unlock()
	l.Lock()
	return l
}

func (g *Guard) release(key uuid.UUID, l *keyLock) {
	l.Unlock()
	g.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(g.locks, key)
	}
	g.mu.Unlock()
}

// Reserve atomically checks and marks the key. Nil means the caller owns
// issuance; store.ErrAlreadyProcessed means a reward was already issued or
// is being issued concurrently.
func (g *Guard) Reserve(ctx context.Context, key uuid.UUID) error {
	l := g.acquire(key)
	defer g.release(key, l)
	return g.store.Reserve(ctx, key)
}

// Finalize persists the record for a reservation after the external reward
// call succeeded. The record is created exactly once and never updated.
func (g *Guard) Finalize(ctx context.Context, key uuid.UUID, rec model.ProcessedReward) error {
	l := g.acquire(key)
	defer g.release(key, l)
	return g.store.Finalize(ctx, key, rec)
}

// Release drops an unfinalized reservation so a later evaluation can retry.
// This is the failure-policy half of the guard: reservations are released
// on issuance failure and kept only on success.
func (g *Guard) Release(ctx context.Context, key uuid.UUID) error {
	l := g.acquire(key)
	defer g.release(key, l)
	return g.store.Release(ctx, key)
}
