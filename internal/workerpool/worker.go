// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package workerpool

import (
	"context"
	"encoding/hex"
	"time"

	"scavenger-miner/internal/difficulty"
	"scavenger-miner/internal/hashengine"
	"scavenger-miner/internal/log"
	"scavenger-miner/internal/merr"
	"scavenger-miner/internal/model"
	"scavenger-miner/internal/preimage"
)

var wrkLog = log.Logger(log.SubsystemWorkerPool)

// ResultKind reports why a worker's Run returned.
type ResultKind string

const (
	ResultSolved    ResultKind = "solved"
	ResultStopped   ResultKind = "stopped_by_sibling"
	ResultAbandoned ResultKind = "abandoned"
	ResultStale     ResultKind = "challenge_stale"
	ResultExhausted ResultKind = "nonce_range_exhausted"
	ResultCancelled ResultKind = "cancelled"
)

// Result is the outcome of one Worker.Run call.
type Result struct {
	WorkerID int
	Kind     ResultKind
}

// SubmissionRequest carries everything the orchestrator's submit
// callback needs to run the §4.8 submission protocol.
type SubmissionRequest struct {
	Address     model.Address
	ChallengeID string
	Nonce       string
	Hash        []byte
	Preimage    []byte
	IsDevFee    bool
	WorkerID    int
}

// SubmitFunc runs the full §4.8 submission protocol (POST, receipt
// append, dev-fee bookkeeping, duplicate/unregistered classification)
// and reports whether (address, challenge) should be treated as solved.
// A nil error means "treat as solved" (covers both a genuine 2xx and a
// server-classified duplicate); a non-nil error means the attempt
// should count against MAX_SUBMISSION_FAILURES.
type SubmitFunc func(ctx context.Context, req SubmissionRequest) error

// Worker mines a single disjoint nonce range against one address.
type Worker struct {
	ID                    int
	Address               model.Address
	BatchSize             int
	MaxSubmissionFailures int
	IsDevFee              bool

	Engine hashengine.Engine
	Coord  *Coordination
	Submit SubmitFunc

	// CurrentChallengeID returns the orchestrator's live challenge id,
	// used for the staleness check after every hash_batch call.
	CurrentChallengeID func() string
	// CurrentChallengeSnapshot returns the orchestrator's live
	// challenge snapshot, used for pre-submission re-validation.
	CurrentChallengeSnapshot func() *model.Challenge

	nonceStart uint64
	nonceEnd   uint64
}

// NewWorker constructs a Worker with its nonce range derived from id,
// per spec.md §4.7.
func NewWorker(id int, addr model.Address, batchSize, maxSubmissionFailures int) *Worker {
	start, end := NonceRange(id)
	return &Worker{
		ID:                    id,
		Address:               addr,
		BatchSize:             batchSize,
		MaxSubmissionFailures: maxSubmissionFailures,
		IsDevFee:              addr.IsDevFee(),
		nonceStart:            start,
		nonceEnd:              end,
	}
}

// Run drives the worker loop against frozen snapshot until it solves,
// is stopped, is abandoned, or exhausts its nonce range.
func (w *Worker) Run(ctx context.Context, snapshot *model.Challenge) Result {
	w.Coord.RegisterWorkerAddress(w.ID, w.Address.Bech32)
	key := SubmissionKey(w.Address.Bech32, snapshot.ChallengeID)
	nonce := w.nonceStart

	target, err := hex.DecodeString(snapshot.Difficulty)
	if err != nil {
		wrkLog.Errorf("worker %d: malformed difficulty %q: %v", w.ID, snapshot.Difficulty, err)
		return Result{WorkerID: w.ID, Kind: ResultAbandoned}
	}

	w.setStatus(model.WorkerMining, snapshot.ChallengeID, 0)

	for {
		select {
		case <-ctx.Done():
			return Result{WorkerID: w.ID, Kind: ResultCancelled}
		default:
		}

		if w.Coord.IsSolved(w.Address.Bech32, snapshot.ChallengeID) {
			return Result{WorkerID: w.ID, Kind: ResultSolved}
		}
		if w.Coord.IsStopped(w.ID) {
			return Result{WorkerID: w.ID, Kind: ResultStopped}
		}
		if w.Coord.FailureCount(key) >= w.MaxSubmissionFailures {
			return Result{WorkerID: w.ID, Kind: ResultAbandoned}
		}
		if w.Coord.IsPaused(key) {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if nonce >= w.nonceEnd {
			return Result{WorkerID: w.ID, Kind: ResultExhausted}
		}

		batchEnd := nonce + uint64(w.BatchSize)
		if batchEnd > w.nonceEnd {
			batchEnd = w.nonceEnd
		}
		nonceHexes := make([]string, 0, batchEnd-nonce)
		preimages := make([][]byte, 0, batchEnd-nonce)
		for n := nonce; n < batchEnd; n++ {
			nh := preimage.EncodeNonce(n)
			nonceHexes = append(nonceHexes, nh)
			preimages = append(preimages, preimage.Build(nh, w.Address.Bech32, snapshot))
		}
		nonce = batchEnd

		hashes, err := w.Engine.HashBatch(ctx, preimages)
		if err != nil {
			if merr.IsKind(err, merr.ErrTransientBackend) || merr.IsKind(err, merr.ErrBackendBusy) {
				sleepOrDone(ctx, hashengine.TransientBackoff)
			} else {
				wrkLog.Errorf("worker %d: hash_batch error: %v", w.ID, err)
				sleepOrDone(ctx, time.Second)
			}
			continue
		}

		if w.CurrentChallengeID != nil && w.CurrentChallengeID() != snapshot.ChallengeID {
			return Result{WorkerID: w.ID, Kind: ResultStale}
		}

		w.recordHashes(snapshot.ChallengeID, uint64(len(hashes)))

		for i, h := range hashes {
			if !difficulty.Matches(h, target) {
				continue
			}
			hashHex := hex.EncodeToString(h)
			if w.Coord.HasSubmittedHash(hashHex) {
				continue
			}
			if !w.Coord.TryAcquireSubmitting(key, w.ID) {
				return Result{WorkerID: w.ID, Kind: ResultStopped}
			}

			w.Coord.StopSiblings(w.ID, w.Address.Bech32)
			w.Coord.Pause(key)
			w.Coord.MarkSubmittedHash(hashHex)
			w.setStatus(model.WorkerSubmitting, snapshot.ChallengeID, 0)

			candidateHash := h
			candidatePreimage := preimages[i]
			candidateNonceHex := nonceHexes[i]

			if ok := w.revalidate(ctx, snapshot, &candidateHash, candidatePreimage, candidateNonceHex); !ok {
				w.Coord.ReleaseSubmitting(key)
				w.Coord.Unpause(key)
				w.Coord.UnmarkSubmittedHash(hashHex)
				w.setStatus(model.WorkerMining, snapshot.ChallengeID, 0)
				break
			}

			err := w.Submit(ctx, SubmissionRequest{
				Address:     w.Address,
				ChallengeID: snapshot.ChallengeID,
				Nonce:       candidateNonceHex,
				Hash:        candidateHash,
				Preimage:    candidatePreimage,
				IsDevFee:    w.IsDevFee,
				WorkerID:    w.ID,
			})
			if err == nil {
				w.Coord.MarkSolved(w.Address.Bech32, snapshot.ChallengeID)
				w.Coord.ResetFailure(key)
				w.Coord.ReleaseSubmitting(key)
				w.Coord.Unpause(key)
				w.setStatus(model.WorkerCompleted, snapshot.ChallengeID, 0)
				return Result{WorkerID: w.ID, Kind: ResultSolved}
			}

			wrkLog.Warnf("worker %d: submission failed for %s: %v", w.ID, w.Address.Bech32, err)
			w.Coord.IncrementFailure(key)
			w.Coord.ReleaseSubmitting(key)
			w.Coord.Unpause(key)
			w.Coord.ClearStoppedSiblings(w.ID, w.Address.Bech32)
			w.Coord.UnmarkSubmittedHash(hashHex)
			w.setStatus(model.WorkerMining, snapshot.ChallengeID, 0)
			break
		}
	}
}

// revalidate re-checks a submission candidate against the orchestrator's
// live snapshot (spec.md §4.7 step 4 "Pre-submission validation"). It
// returns false if the candidate should be discarded silently.
func (w *Worker) revalidate(ctx context.Context, frozen *model.Challenge, hash *[]byte, preimageBytes []byte, nonceHex string) bool {
	if w.CurrentChallengeSnapshot == nil {
		return true
	}
	current := w.CurrentChallengeSnapshot()
	if current == nil || current.ChallengeID != frozen.ChallengeID {
		return false
	}
	if frozen.MutableFieldsEqual(current) {
		return true
	}

	newPreimage := preimage.Build(nonceHex, w.Address.Bech32, current)
	newHashes, err := w.Engine.HashBatch(ctx, [][]byte{newPreimage})
	if err != nil || len(newHashes) != 1 {
		return false
	}
	target, err := hex.DecodeString(current.Difficulty)
	if err != nil {
		return false
	}
	if !difficulty.Matches(newHashes[0], target) {
		return false
	}
	*hash = newHashes[0]
	return true
}

func (w *Worker) recordHashes(challengeID string, n uint64) {
	stats := w.currentStats()
	stats.HashesComputed += n
	stats.LastUpdateTime = time.Now()
	stats.CurrentChallenge = challengeID
	w.Coord.UpdateStats(stats)
}

// currentStats fetches the worker's current stats record, seeding one
// on first use. It is not safe for concurrent use from more than one
// goroutine, which holds for a single Worker instance (each worker is
// driven by exactly one goroutine).
func (w *Worker) currentStats() model.WorkerStats {
	if s, ok := w.Coord.GetStats(w.ID); ok {
		return s
	}
	return model.WorkerStats{
		WorkerID:     w.ID,
		AddressIndex: w.Address.Index,
		Address:      w.Address.Bech32,
		StartTime:    time.Now(),
		Status:       model.WorkerIdle,
	}
}

func (w *Worker) setStatus(status model.WorkerStatus, challengeID string, hashesDelta uint64) {
	stats := w.currentStats()
	stats.Status = status
	stats.CurrentChallenge = challengeID
	stats.HashesComputed += hashesDelta
	stats.LastUpdateTime = time.Now()
	if stats.StartTime.IsZero() {
		stats.StartTime = time.Now()
	}
	w.Coord.UpdateStats(stats)
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
