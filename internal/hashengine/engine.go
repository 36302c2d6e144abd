// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package hashengine defines the C1 hash engine driver contract: a
// stateful service holding an initialized ROM and exposing a parallel
// batch-hash operation. The orchestrator and worker pool depend only on
// the Engine interface; LocalEngine and GRPCEngine are the two
// implementations this module ships.
package hashengine

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"scavenger-miner/internal/log"
	"scavenger-miner/internal/merr"
)

// RomInitTimeout bounds how long InitROM may block before giving up,
// per spec.md §4.1.
const RomInitTimeout = 60 * time.Second

// TransientBackoff is the sleep applied by callers after a
// ErrTransientBackend/ErrBackendBusy result, per spec.md §4.1 and §4.7.
const TransientBackoff = 2 * time.Second

// Engine is the C1 hash engine driver contract.
type Engine interface {
	// InitROM (re)builds the ROM for the given no_pre_mine value. It is
	// idempotent: calling it again with the same value while already
	// ready returns immediately. It blocks until ready or returns
	// merr.ErrRomInitTimeout after RomInitTimeout.
	InitROM(ctx context.Context, noPreMine string) error

	// IsROMReady reports whether the engine currently holds a built ROM.
	IsROMReady() bool

	// HashBatch hashes every preimage and returns hashes in the same
	// order as the input. It may return merr.ErrTransientBackend (caller
	// should back off TransientBackoff and retry) or a hard error.
	HashBatch(ctx context.Context, preimages [][]byte) ([][]byte, error)

	// KillWorkers tears down any internal worker state so a subsequent
	// InitROM can safely rebuild it. The orchestrator calls this at the
	// start of every transition (spec.md §4.8).
	KillWorkers(ctx context.Context) error
}

var engLog = log.Logger(log.SubsystemHashEngine)

// noPreMineState tracks what the engine currently believes its ROM was
// built for, held as a field by both implementations.
type noPreMineState struct {
	builtFor string
	ready    bool
}

// classifyHashError maps a gRPC call failure onto the taxonomy in
// spec.md §7: backend busy / deadline exceeded / unavailable are
// transient and should be retried after TransientBackoff; everything
// else is surfaced as-is.
func classifyHashError(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.DeadlineExceeded, codes.Unavailable, codes.ResourceExhausted:
		return merr.New(merr.ErrTransientBackend, "hash engine backend busy", err)
	default:
		return err
	}
}
