// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package model holds the data types shared across every mining
// orchestrator component, kept separate to avoid import cycles between
// the poller, worker pool, dev-fee rotator, and receipts store.
package model

import "time"

// ChallengeCode is the lifecycle state the scavenger service reports for
// the current challenge.
type ChallengeCode string

const (
	ChallengeBefore ChallengeCode = "before"
	ChallengeActive ChallengeCode = "active"
	ChallengeAfter  ChallengeCode = "after"
)

// Challenge is an immutable snapshot of the server-defined descriptor a
// miner is currently trying to solve. Workers must hold a deep-copied
// snapshot of this for the duration of a single batch; Clone produces
// exactly such a copy.
type Challenge struct {
	ChallengeID      string        `json:"challenge_id"`
	Difficulty       string        `json:"difficulty"`
	LatestSubmission string        `json:"latest_submission"`
	NoPreMine        string        `json:"no_pre_mine"`
	NoPreMineHour    string        `json:"no_pre_mine_hour"`
	StartsAt         time.Time     `json:"starts_at"`
	Code             ChallengeCode `json:"code"`
}

// Clone returns a deep copy of the challenge snapshot. Challenge has no
// pointer or slice fields today, but Clone exists so callers never rely
// on Go's default copy semantics if that changes.
func (c *Challenge) Clone() *Challenge {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// MutableFieldsEqual reports whether the fields that may change without a
// challenge_id change (difficulty, latest_submission, no_pre_mine_hour)
// are identical between c and other. ChallengeID and NoPreMine are
// intentionally excluded: those are handled as their own transitions.
func (c *Challenge) MutableFieldsEqual(other *Challenge) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.Difficulty == other.Difficulty &&
		c.LatestSubmission == other.LatestSubmission &&
		c.NoPreMineHour == other.NoPreMineHour
}

// DevFeeAddressIndex is the sentinel address index denoting a dev-fee
// address rather than a user-registered one.
const DevFeeAddressIndex = -1

// Address identifies one of the wallet's derived mining addresses, or
// (when Index == DevFeeAddressIndex) a rotating dev-fee address.
type Address struct {
	Index      int    `json:"index"`
	Bech32     string `json:"bech32"`
	PublicKey  string `json:"public_key"`
	Registered bool   `json:"registered"`
}

// IsDevFee reports whether this address is a dev-fee rotation address
// rather than one owned by the wallet.
func (a Address) IsDevFee() bool {
	return a.Index == DevFeeAddressIndex
}

// WorkerStatus is the lifecycle state of a single mining worker.
type WorkerStatus string

const (
	WorkerIdle       WorkerStatus = "idle"
	WorkerMining     WorkerStatus = "mining"
	WorkerSubmitting WorkerStatus = "submitting"
	WorkerCompleted  WorkerStatus = "completed"
)

// WorkerStats is the orchestrator's live view of one worker, consulted
// by the watchdog and exposed to optional observers.
type WorkerStats struct {
	WorkerID         int          `json:"worker_id"`
	AddressIndex     int          `json:"address_index"`
	Address          string       `json:"address"`
	HashesComputed   uint64       `json:"hashes_computed"`
	HashRate         float64      `json:"hash_rate"`
	SolutionsFound   uint64       `json:"solutions_found"`
	StartTime        time.Time    `json:"start_time"`
	LastUpdateTime   time.Time    `json:"last_update_time"`
	Status           WorkerStatus `json:"status"`
	CurrentChallenge string       `json:"current_challenge"`
}

// ReceiptEntry is the persistent record of an accepted solution.
type ReceiptEntry struct {
	Timestamp     time.Time `json:"ts"`
	Address       string    `json:"address"`
	AddressIndex  int       `json:"address_index"`
	ChallengeID   string    `json:"challenge_id"`
	Nonce         string    `json:"nonce"`
	Hash          string    `json:"hash"`
	CryptoReceipt string    `json:"crypto_receipt,omitempty"`
	IsDevFee      bool      `json:"is_dev_fee"`
}

// ErrorEntry is the persistent record of a failed or uncertain
// submission attempt, kept alongside receipts for postmortem and for
// the benign-duplicate audit trail.
type ErrorEntry struct {
	Timestamp    time.Time `json:"ts"`
	Address      string    `json:"address"`
	AddressIndex int       `json:"address_index"`
	ChallengeID  string    `json:"challenge_id"`
	Nonce        string    `json:"nonce,omitempty"`
	Kind         string    `json:"kind"`
	Message      string    `json:"message"`
}

// DevFeeAddress is one slot of the dev-fee rotation pool.
type DevFeeAddress struct {
	Address       string `json:"devAddress"`
	AddressIndex  int    `json:"devAddressIndex"`
	Registered    bool   `json:"registered"`
}
