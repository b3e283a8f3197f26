// Package session holds the in-memory per-participant progress cache and the
// judged-identity set. Progress lives only in memory until a run completes;
// the judged set mirrors the durable store and blocks re-entry without a
// per-message database query.
package session

import (
	"sync"

	"github.com/pavelanni/screener/internal/model"
)

// Cache is a concurrency-safe store of per-participant progress.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*model.Progress
	// Per-identity locks serialize all message handling for one participant
	// while distinct participants proceed independently. Locks are never
	// removed: a waiter on an evicted identity's lock must still exclude a
	// later acquirer.
	locks map[string]*sync.Mutex

	judgedMu sync.RWMutex
	judged   map[string]struct{}
}

// New creates a cache whose judged set is seeded from the durable store's
// startup bulk scan.
func New(judged []string) *Cache {
	c := &Cache{
		entries: make(map[string]*model.Progress),
		locks:   make(map[string]*sync.Mutex),
		judged:  make(map[string]struct{}, len(judged)),
	}
	for _, id := range judged {
		c.judged[id] = struct{}{}
	}
	return c
}

// Acquire takes the identity's lock and returns the release function. The
// controller holds it across classify + record + completion check + commit +
// evict, so duplicate delivery of one message cannot double-count an answer.
func (c *Cache) Acquire(identity string) func() {
	c.mu.Lock()
	lock, ok := c.locks[identity]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[identity] = lock
	}
	c.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// GetOrInit returns the identity's progress, creating a zeroed entry if none
// exists. Entries are always fully initialized; there is no implicit
// zero-value insertion path.
func (c *Cache) GetOrInit(identity string) model.Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[identity]
	if !ok {
		p = &model.Progress{Identity: identity, State: model.StateAwaitingStart, Answers: []int{}}
		c.entries[identity] = p
	}
	return *p
}

// SetState records a conversation-state transition for the identity.
func (c *Cache) SetState(identity string, state model.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.entries[identity]; ok {
		p.State = state
	}
}

// RecordAnswer appends the choice to the answer sequence, bumps the matching
// counter, and advances the question index. It returns the updated progress.
func (c *Cache) RecordAnswer(identity string, choiceID int, correct bool) model.Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[identity]
	if !ok {
		p = &model.Progress{Identity: identity, State: model.StateInProgress, Answers: []int{}}
		c.entries[identity] = p
	}
	p.Answers = append(p.Answers, choiceID)
	if correct {
		p.YesCount++
	} else {
		p.NoCount++
	}
	p.CurrentQuestion++
	return *p
}

// Reset discards the identity's entry; the next GetOrInit starts fresh.
func (c *Cache) Reset(identity string) {
	c.Evict(identity)
}

// Evict removes the identity's entry (after completion or abandonment).
func (c *Cache) Evict(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, identity)
}

// HasCompletedBefore reports whether the identity has a persisted, judged run.
func (c *Cache) HasCompletedBefore(identity string) bool {
	c.judgedMu.RLock()
	defer c.judgedMu.RUnlock()
	_, ok := c.judged[identity]
	return ok
}

// MarkJudged records a completed, persisted run. Called only after the
// durable commit succeeded.
func (c *Cache) MarkJudged(identity string) {
	c.judgedMu.Lock()
	defer c.judgedMu.Unlock()
	c.judged[identity] = struct{}{}
}

// Active returns the number of live progress entries.
func (c *Cache) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// JudgedCount returns the size of the judged set.
func (c *Cache) JudgedCount() int {
	c.judgedMu.RLock()
	defer c.judgedMu.RUnlock()
	return len(c.judged)
}
