// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package workerpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTryAcquireSubmittingIsOneWinner(t *testing.T) {
	c := NewCoordination()
	const n = 50
	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if c.TryAcquireSubmitting("addr:C1", id) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	require.EqualValues(t, 1, wins)
}

func TestStopSiblingsOnlyAffectsSameAddress(t *testing.T) {
	c := NewCoordination()
	c.RegisterWorkerAddress(0, "addrA")
	c.RegisterWorkerAddress(1, "addrA")
	c.RegisterWorkerAddress(2, "addrB")

	c.StopSiblings(0, "addrA")
	require.False(t, c.IsStopped(0))
	require.True(t, c.IsStopped(1))
	require.False(t, c.IsStopped(2))
}

func TestClearStoppedSiblingsResumesMining(t *testing.T) {
	c := NewCoordination()
	c.RegisterWorkerAddress(0, "addrA")
	c.RegisterWorkerAddress(1, "addrA")
	c.StopSiblings(0, "addrA")
	require.True(t, c.IsStopped(1))
	c.ClearStoppedSiblings(0, "addrA")
	require.False(t, c.IsStopped(1))
}

func TestSolvedSetMonotonic(t *testing.T) {
	c := NewCoordination()
	require.False(t, c.IsSolved("addr", "C1"))
	c.MarkSolved("addr", "C1")
	require.True(t, c.IsSolved("addr", "C1"))
	// Marking again, or marking a different challenge, never removes it.
	c.MarkSolved("addr", "C2")
	require.True(t, c.IsSolved("addr", "C1"))
	require.True(t, c.IsSolved("addr", "C2"))
}

func TestResetForTransitionPreservesSolvedSetAndSubmittedHashes(t *testing.T) {
	c := NewCoordination()
	c.MarkSolved("addr", "C1")
	c.MarkSubmittedHash("deadbeef")
	c.Pause("addr:C1")
	c.stopped[5] = struct{}{}

	c.ResetForTransition()

	require.True(t, c.IsSolved("addr", "C1"))
	require.True(t, c.HasSubmittedHash("deadbeef"))
	require.False(t, c.IsPaused("addr:C1"))
	require.False(t, c.IsStopped(5))
}
