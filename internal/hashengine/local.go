// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package hashengine

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/crypto/blake2b"

	"scavenger-miner/internal/merr"
)

// LocalEngine is an in-process reference implementation of Engine. It
// fans each batch across runtime.NumCPU() goroutines and uses a keyed
// BLAKE2b hash parameterised by no_pre_mine as a stand-in ROM. The real
// ROM-based primitive is out of scope for this module (spec.md §1); this
// implementation exists so the orchestrator and worker pool can be
// exercised end-to-end without the external sidecar.
type LocalEngine struct {
	mu    sync.RWMutex
	state noPreMineState
	key   []byte
}

// NewLocalEngine returns a LocalEngine with no ROM built yet.
func NewLocalEngine() *LocalEngine {
	return &LocalEngine{}
}

// InitROM implements Engine.
func (e *LocalEngine) InitROM(ctx context.Context, noPreMine string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.ready && e.state.builtFor == noPreMine {
		return nil
	}
	key := make([]byte, blake2b.Size)
	copy(key, []byte(noPreMine))
	e.key = key
	e.state = noPreMineState{builtFor: noPreMine, ready: true}
	engLog.Debugf("ROM built for no_pre_mine=%s", noPreMine)
	return nil
}

// IsROMReady implements Engine.
func (e *LocalEngine) IsROMReady() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.ready
}

// HashBatch implements Engine.
func (e *LocalEngine) HashBatch(ctx context.Context, preimages [][]byte) ([][]byte, error) {
	e.mu.RLock()
	ready := e.state.ready
	key := e.key
	e.mu.RUnlock()
	if !ready {
		return nil, merr.New(merr.ErrRomInitTimeout, "hash_batch called before ROM is ready", nil)
	}

	results := make([][]byte, len(preimages))
	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	if workers > len(preimages) {
		workers = len(preimages)
	}
	if workers == 0 {
		return results, nil
	}

	var wg sync.WaitGroup
	chunk := (len(preimages) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		start := w * chunk
		if start >= len(preimages) {
			break
		}
		end := start + chunk
		if end > len(preimages) {
			end = len(preimages)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				select {
				case <-ctx.Done():
					return
				default:
				}
				h, _ := blake2b.New256(key)
				h.Write(preimages[i])
				results[i] = h.Sum(nil)
			}
		}(start, end)
	}
	wg.Wait()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return results, nil
}

// KillWorkers implements Engine. LocalEngine's fan-out is stateless
// between calls, so this only clears ROM readiness.
func (e *LocalEngine) KillWorkers(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.ready = false
	return nil
}
