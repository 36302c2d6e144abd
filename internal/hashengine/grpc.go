// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package hashengine

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"google.golang.org/grpc"

	"scavenger-miner/internal/merr"
)

// GRPCEngine talks to an external hash engine sidecar over gRPC using
// jsonCodec (jsoncodec.go). It satisfies Engine.
type GRPCEngine struct {
	conn *grpc.ClientConn

	mu    sync.RWMutex
	state noPreMineState
}

// DialGRPCEngine connects to a hash engine sidecar listening at addr.
func DialGRPCEngine(ctx context.Context, addr string) (*GRPCEngine, error) {
	conn, err := grpc.DialContext(ctx, addr,
		grpc.WithInsecure(),
		grpc.WithBlock(),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodec{}.Name())),
	)
	if err != nil {
		return nil, err
	}
	return &GRPCEngine{conn: conn}, nil
}

// Close releases the underlying gRPC connection.
func (e *GRPCEngine) Close() error {
	return e.conn.Close()
}

type initRequest struct {
	NoPreMine string `json:"no_pre_mine"`
	AshConfig string `json:"ashConfig,omitempty"`
}

type initResponse struct {
	Accepted bool `json:"accepted"`
}

type healthResponse struct {
	Ready bool `json:"ready"`
}

type hashBatchRequest struct {
	Preimages []string `json:"preimages"`
}

type hashBatchResponse struct {
	Hashes []string `json:"hashes"`
}

type emptyMessage struct{}

// InitROM implements Engine.
func (e *GRPCEngine) InitROM(ctx context.Context, noPreMine string) error {
	e.mu.RLock()
	already := e.state.ready && e.state.builtFor == noPreMine
	e.mu.RUnlock()
	if already {
		return nil
	}

	initCtx, cancel := context.WithTimeout(ctx, RomInitTimeout)
	defer cancel()

	req := &initRequest{NoPreMine: noPreMine}
	resp := &initResponse{}
	if err := e.conn.Invoke(initCtx, "/scavenger.HashEngine/Init", req, resp); err != nil {
		return merr.New(merr.ErrRomInitTimeout, "init_rom RPC failed", err)
	}
	if !resp.Accepted {
		return merr.New(merr.ErrRomInitTimeout, "init_rom rejected by engine", nil)
	}

	deadline := time.Now().Add(RomInitTimeout)
	for time.Now().Before(deadline) {
		if e.pollHealth(initCtx) {
			e.mu.Lock()
			e.state = noPreMineState{builtFor: noPreMine, ready: true}
			e.mu.Unlock()
			return nil
		}
		select {
		case <-initCtx.Done():
			return merr.New(merr.ErrRomInitTimeout, "init_rom timed out waiting for readiness", initCtx.Err())
		case <-time.After(500 * time.Millisecond):
		}
	}
	return merr.New(merr.ErrRomInitTimeout, "init_rom timed out waiting for readiness", nil)
}

func (e *GRPCEngine) pollHealth(ctx context.Context) bool {
	resp := &healthResponse{}
	if err := e.conn.Invoke(ctx, "/scavenger.HashEngine/Health", &emptyMessage{}, resp); err != nil {
		return false
	}
	return resp.Ready
}

// IsROMReady implements Engine.
func (e *GRPCEngine) IsROMReady() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.ready
}

// HashBatch implements Engine.
func (e *GRPCEngine) HashBatch(ctx context.Context, preimages [][]byte) ([][]byte, error) {
	req := &hashBatchRequest{Preimages: make([]string, len(preimages))}
	for i, p := range preimages {
		req.Preimages[i] = hex.EncodeToString(p)
	}
	resp := &hashBatchResponse{}
	err := e.conn.Invoke(ctx, "/scavenger.HashEngine/HashBatch", req, resp)
	if err != nil {
		return nil, classifyHashError(err)
	}
	if len(resp.Hashes) != len(preimages) {
		return nil, merr.New(merr.ErrTransientBackend, "hash_batch returned mismatched length", nil)
	}
	out := make([][]byte, len(resp.Hashes))
	for i, hexHash := range resp.Hashes {
		b, err := hex.DecodeString(hexHash)
		if err != nil {
			return nil, merr.New(merr.ErrTransientBackend, "hash_batch returned malformed hash", err)
		}
		out[i] = b
	}
	return out, nil
}

// KillWorkers implements Engine.
func (e *GRPCEngine) KillWorkers(ctx context.Context) error {
	e.mu.Lock()
	e.state.ready = false
	e.mu.Unlock()
	return e.conn.Invoke(ctx, "/scavenger.HashEngine/KillWorkers", &emptyMessage{}, &emptyMessage{})
}
