// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package workerpool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"scavenger-miner/internal/hashengine"
	"scavenger-miner/internal/model"
)

func trivialChallenge(id string) *model.Challenge {
	return &model.Challenge{
		ChallengeID:      id,
		Difficulty:       "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff",
		LatestSubmission: "sub",
		NoPreMineHour:    "h1",
		Code:             model.ChallengeActive,
	}
}

func newEngine(t *testing.T, noPreMine string) *hashengine.LocalEngine {
	t.Helper()
	e := hashengine.NewLocalEngine()
	require.NoError(t, e.InitROM(context.Background(), noPreMine))
	return e
}

func TestWorkerSolvesTrivialDifficultyImmediately(t *testing.T) {
	coord := NewCoordination()
	engine := newEngine(t, "np1")
	ch := trivialChallenge("C1")

	var submitted bool
	w := NewWorker(0, model.Address{Bech32: "addr1", Registered: true}, 10, 1)
	w.Engine = engine
	w.Coord = coord
	w.CurrentChallengeID = func() string { return "C1" }
	w.CurrentChallengeSnapshot = func() *model.Challenge { return ch }
	w.Submit = func(ctx context.Context, req SubmissionRequest) error {
		submitted = true
		return nil
	}

	result := w.Run(context.Background(), ch)
	require.Equal(t, ResultSolved, result.Kind)
	require.True(t, submitted)
	require.True(t, coord.IsSolved("addr1", "C1"))
}

func TestWorkerAbandonsAfterMaxSubmissionFailures(t *testing.T) {
	coord := NewCoordination()
	engine := newEngine(t, "np1")
	ch := trivialChallenge("C1")

	w := NewWorker(0, model.Address{Bech32: "addr1"}, 5, 1)
	w.Engine = engine
	w.Coord = coord
	w.CurrentChallengeID = func() string { return "C1" }
	w.CurrentChallengeSnapshot = func() *model.Challenge { return ch }
	w.Submit = func(ctx context.Context, req SubmissionRequest) error {
		return errDummy{}
	}

	result := w.Run(context.Background(), ch)
	require.Equal(t, ResultAbandoned, result.Kind)
	require.False(t, coord.IsSolved("addr1", "C1"))
}

type errDummy struct{}

func (errDummy) Error() string { return "dummy submission failure" }

func TestWorkerDiscardsOnChallengeStaleness(t *testing.T) {
	coord := NewCoordination()
	engine := newEngine(t, "np1")
	ch := trivialChallenge("C1")

	w := NewWorker(0, model.Address{Bech32: "addr1"}, 5, 1)
	w.Engine = engine
	w.Coord = coord
	w.CurrentChallengeID = func() string { return "C2" } // already moved on
	w.CurrentChallengeSnapshot = func() *model.Challenge { return ch }
	w.Submit = func(ctx context.Context, req SubmissionRequest) error {
		t.Fatalf("submit should not be called for a stale challenge")
		return nil
	}

	result := w.Run(context.Background(), ch)
	require.Equal(t, ResultStale, result.Kind)
}

func TestWorkerExitsWhenAlreadySolved(t *testing.T) {
	coord := NewCoordination()
	coord.MarkSolved("addr1", "C1")
	engine := newEngine(t, "np1")
	ch := trivialChallenge("C1")

	w := NewWorker(0, model.Address{Bech32: "addr1"}, 5, 1)
	w.Engine = engine
	w.Coord = coord
	w.CurrentChallengeID = func() string { return "C1" }
	w.CurrentChallengeSnapshot = func() *model.Challenge { return ch }

	result := w.Run(context.Background(), ch)
	require.Equal(t, ResultSolved, result.Kind)
}

func TestWorkerExitsWhenStoppedBySibling(t *testing.T) {
	coord := NewCoordination()
	coord.RegisterWorkerAddress(0, "addr1")
	coord.StopSiblings(1, "addr1") // stop every sibling except worker 1
	engine := newEngine(t, "np1")
	ch := trivialChallenge("C1")

	w := NewWorker(0, model.Address{Bech32: "addr1"}, 5, 1)
	w.Engine = engine
	w.Coord = coord
	w.CurrentChallengeID = func() string { return "C1" }
	w.CurrentChallengeSnapshot = func() *model.Challenge { return ch }

	result := w.Run(context.Background(), ch)
	require.Equal(t, ResultStopped, result.Kind)
}

func TestRevalidateDiscardsSilentlyWhenDifficultyTightens(t *testing.T) {
	coord := NewCoordination()
	engine := newEngine(t, "np1")
	frozen := trivialChallenge("C1")

	tightened := trivialChallenge("C1")
	tightened.Difficulty = "0000000000000000000000000000000000000000000000000000000000000000"

	w := NewWorker(0, model.Address{Bech32: "addr1"}, 5, 1)
	w.Engine = engine
	w.Coord = coord
	w.CurrentChallengeSnapshot = func() *model.Challenge { return tightened }

	key := SubmissionKey("addr1", "C1")
	hash := []byte{0xff}
	ok := w.revalidate(context.Background(), frozen, &hash, []byte("preimage"), "nonce")

	require.False(t, ok)
	require.Equal(t, 0, coord.FailureCount(key))
}

func TestNonceRangesDisjoint(t *testing.T) {
	seen := make(map[uint64]int)
	for id := 0; id < 8; id++ {
		start, end := NonceRange(id)
		for n := start; n < start+1000; n++ { // sample the front of each range
			if owner, ok := seen[n]; ok {
				t.Fatalf("nonce %d claimed by both worker %d and %d", n, owner, id)
			}
			seen[n] = id
		}
		require.Equal(t, NonceRangeWidth, end-start)
	}
}
