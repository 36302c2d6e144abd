// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package workerpool implements the C7 worker pool: a set of
// cooperating mining workers, each owning a disjoint nonce sub-range,
// running parallel batch hashing against a shared hash engine.
package workerpool

import (
	"sync"

	"scavenger-miner/internal/model"
)

// NonceRangeWidth is the width of each worker's disjoint nonce
// sub-range, per spec.md §4.7.
const NonceRangeWidth = uint64(1_000_000_000)

// NonceRange returns the [start, end) nonce range owned by workerID.
func NonceRange(workerID int) (start, end uint64) {
	start = uint64(workerID) * NonceRangeWidth
	return start, start + NonceRangeWidth
}

// Coordination holds every shared mutable set/map described in
// spec.md §3/§5: SolvedSet, SubmittedHashes, SubmittingAddresses,
// PausedAddresses, StoppedWorkers, AddressSubmissionFailures, and
// WorkerStats. It is safe for concurrent use by many worker goroutines
// and the orchestrator's coordination goroutine.
type Coordination struct {
	solvedMu sync.RWMutex
	solved   map[string]map[string]struct{} // address -> set(challenge_id)

	submittedHashes sync.Map // hash string -> struct{}

	submittingMu sync.Mutex
	submitting   map[string]int // "address:challenge_id" -> worker_id holding the lock

	pausedMu sync.Mutex
	paused   map[string]struct{} // "address:challenge_id"

	stoppedMu sync.Mutex
	stopped   map[int]struct{} // worker_id

	failuresMu sync.Mutex
	failures   map[string]int // "address:challenge_id" -> count

	statsMu sync.Mutex
	stats   map[int]model.WorkerStats // worker_id -> stats

	addressWorkersMu sync.Mutex
	addressWorkers   map[string]map[int]struct{} // address -> set(worker_id currently assigned)
}

// NewCoordination returns a freshly zeroed Coordination.
func NewCoordination() *Coordination {
	return &Coordination{
		solved:         make(map[string]map[string]struct{}),
		submitting:     make(map[string]int),
		paused:         make(map[string]struct{}),
		stopped:        make(map[int]struct{}),
		failures:       make(map[string]int),
		stats:          make(map[int]model.WorkerStats),
		addressWorkers: make(map[string]map[int]struct{}),
	}
}

// SubmissionKey builds the "address:challenge_id" key used by the
// submitting/paused/failures maps.
func SubmissionKey(address, challengeID string) string {
	return address + ":" + challengeID
}

// IsSolved reports whether (address, challengeID) is already in
// SolvedSet.
func (c *Coordination) IsSolved(address, challengeID string) bool {
	c.solvedMu.RLock()
	defer c.solvedMu.RUnlock()
	set, ok := c.solved[address]
	if !ok {
		return false
	}
	_, ok = set[challengeID]
	return ok
}

// MarkSolved inserts (address, challengeID) into SolvedSet. Once
// inserted it is never removed (spec.md §8 solved monotonicity).
func (c *Coordination) MarkSolved(address, challengeID string) {
	c.solvedMu.Lock()
	defer c.solvedMu.Unlock()
	set, ok := c.solved[address]
	if !ok {
		set = make(map[string]struct{})
		c.solved[address] = set
	}
	set[challengeID] = struct{}{}
}

// SolvedChallengesFor returns a copy of the set of challenge ids solved
// for address.
func (c *Coordination) SolvedChallengesFor(address string) map[string]struct{} {
	c.solvedMu.RLock()
	defer c.solvedMu.RUnlock()
	out := make(map[string]struct{})
	for id := range c.solved[address] {
		out[id] = struct{}{}
	}
	return out
}

// HasSubmittedHash reports whether hash has already been POSTed by any
// worker in this process.
func (c *Coordination) HasSubmittedHash(hash string) bool {
	_, ok := c.submittedHashes.Load(hash)
	return ok
}

// MarkSubmittedHash records hash as submitted.
func (c *Coordination) MarkSubmittedHash(hash string) {
	c.submittedHashes.Store(hash, struct{}{})
}

// UnmarkSubmittedHash removes hash from SubmittedHashes, used when a
// candidate fails pre-submission validation or the submission itself
// fails (spec.md §4.7 step 4).
func (c *Coordination) UnmarkSubmittedHash(hash string) {
	c.submittedHashes.Delete(hash)
}

// TryAcquireSubmitting performs the atomic test-and-set arbitration over
// submitting_addresses[key]: only the first caller for a given key
// succeeds.
func (c *Coordination) TryAcquireSubmitting(key string, workerID int) bool {
	c.submittingMu.Lock()
	defer c.submittingMu.Unlock()
	if _, held := c.submitting[key]; held {
		return false
	}
	c.submitting[key] = workerID
	return true
}

// ReleaseSubmitting releases the submitting lock on key.
func (c *Coordination) ReleaseSubmitting(key string) {
	c.submittingMu.Lock()
	defer c.submittingMu.Unlock()
	delete(c.submitting, key)
}

// Pause adds key to PausedAddresses, gating other workers mining the
// same (address, challenge) pair.
func (c *Coordination) Pause(key string) {
	c.pausedMu.Lock()
	defer c.pausedMu.Unlock()
	c.paused[key] = struct{}{}
}

// Unpause removes key from PausedAddresses.
func (c *Coordination) Unpause(key string) {
	c.pausedMu.Lock()
	defer c.pausedMu.Unlock()
	delete(c.paused, key)
}

// IsPaused reports whether key is currently paused.
func (c *Coordination) IsPaused(key string) bool {
	c.pausedMu.Lock()
	defer c.pausedMu.Unlock()
	_, ok := c.paused[key]
	return ok
}

// RegisterWorkerAddress records that workerID is mining address, so
// StopSiblings can later find the right set of workers to stop.
func (c *Coordination) RegisterWorkerAddress(workerID int, address string) {
	c.addressWorkersMu.Lock()
	defer c.addressWorkersMu.Unlock()
	set, ok := c.addressWorkers[address]
	if !ok {
		set = make(map[int]struct{})
		c.addressWorkers[address] = set
	}
	set[workerID] = struct{}{}
}

// StopSiblings marks every worker other than exceptWorkerID that is
// currently registered against address as stopped. Only siblings on the
// same address are touched, never the whole pool (spec.md §4.7).
func (c *Coordination) StopSiblings(exceptWorkerID int, address string) {
	c.addressWorkersMu.Lock()
	siblings := make([]int, 0, len(c.addressWorkers[address]))
	for id := range c.addressWorkers[address] {
		if id != exceptWorkerID {
			siblings = append(siblings, id)
		}
	}
	c.addressWorkersMu.Unlock()

	c.stoppedMu.Lock()
	defer c.stoppedMu.Unlock()
	for _, id := range siblings {
		c.stopped[id] = struct{}{}
	}
}

// ClearStoppedSiblings un-stops every worker on address other than
// exceptWorkerID, used when a submission that preemptively stopped
// siblings then fails and mining should resume (spec.md §4.7 step 4).
func (c *Coordination) ClearStoppedSiblings(exceptWorkerID int, address string) {
	c.addressWorkersMu.Lock()
	siblings := make([]int, 0, len(c.addressWorkers[address]))
	for id := range c.addressWorkers[address] {
		if id != exceptWorkerID {
			siblings = append(siblings, id)
		}
	}
	c.addressWorkersMu.Unlock()

	c.stoppedMu.Lock()
	defer c.stoppedMu.Unlock()
	for _, id := range siblings {
		delete(c.stopped, id)
	}
}

// IsStopped reports whether workerID has been asked to exit early.
func (c *Coordination) IsStopped(workerID int) bool {
	c.stoppedMu.Lock()
	defer c.stoppedMu.Unlock()
	_, ok := c.stopped[workerID]
	return ok
}

// FailureCount returns the current submission failure count for key.
func (c *Coordination) FailureCount(key string) int {
	c.failuresMu.Lock()
	defer c.failuresMu.Unlock()
	return c.failures[key]
}

// IncrementFailure increments and returns the new failure count for key.
func (c *Coordination) IncrementFailure(key string) int {
	c.failuresMu.Lock()
	defer c.failuresMu.Unlock()
	c.failures[key]++
	return c.failures[key]
}

// ResetFailure clears the failure count for key, called after a
// successful submission.
func (c *Coordination) ResetFailure(key string) {
	c.failuresMu.Lock()
	defer c.failuresMu.Unlock()
	delete(c.failures, key)
}

// UpdateStats records the latest WorkerStats snapshot for a worker.
func (c *Coordination) UpdateStats(stats model.WorkerStats) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats[stats.WorkerID] = stats
}

// GetStats returns the latest stats recorded for workerID, if any.
func (c *Coordination) GetStats(workerID int) (model.WorkerStats, bool) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	s, ok := c.stats[workerID]
	return s, ok
}

// AllStats returns a snapshot of every worker's latest stats, consulted
// by the watchdog.
func (c *Coordination) AllStats() []model.WorkerStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	out := make([]model.WorkerStats, 0, len(c.stats))
	for _, s := range c.stats {
		out = append(out, s)
	}
	return out
}

// ResetForTransition clears every piece of per-challenge coordination
// state except SolvedSet (which persists across the process lifetime),
// SubmittedHashes (which persists for dedup across challenges too) and
// the submission failure counters (keyed by address and challenge id).
// Called at the start of every challenge transition (spec.md §4.8 step 3).
func (c *Coordination) ResetForTransition() {
	c.statsMu.Lock()
	c.stats = make(map[int]model.WorkerStats)
	c.statsMu.Unlock()

	c.pausedMu.Lock()
	c.paused = make(map[string]struct{})
	c.pausedMu.Unlock()

	c.submittingMu.Lock()
	c.submitting = make(map[string]int)
	c.submittingMu.Unlock()

	c.stoppedMu.Lock()
	c.stopped = make(map[int]struct{})
	c.stoppedMu.Unlock()

	c.addressWorkersMu.Lock()
	c.addressWorkers = make(map[string]map[int]struct{})
	c.addressWorkersMu.Unlock()
}
