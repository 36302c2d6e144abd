// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package hashengine

import (
	"context"
	"testing"
)

func TestLocalEngineHashBatchOrderPreserved(t *testing.T) {
	e := NewLocalEngine()
	ctx := context.Background()
	if err := e.InitROM(ctx, "np1"); err != nil {
		t.Fatalf("InitROM: %v", err)
	}
	if !e.IsROMReady() {
		t.Fatalf("expected ROM ready")
	}

	preimages := make([][]byte, 50)
	for i := range preimages {
		preimages[i] = []byte{byte(i)}
	}
	hashes, err := e.HashBatch(ctx, preimages)
	if err != nil {
		t.Fatalf("HashBatch: %v", err)
	}
	if len(hashes) != len(preimages) {
		t.Fatalf("expected %d hashes, got %d", len(preimages), len(hashes))
	}

	hashes2, err := e.HashBatch(ctx, preimages)
	if err != nil {
		t.Fatalf("HashBatch: %v", err)
	}
	for i := range hashes {
		if string(hashes[i]) != string(hashes2[i]) {
			t.Fatalf("hash_batch not idempotent at index %d", i)
		}
	}
}

func TestLocalEngineHashBatchBeforeInit(t *testing.T) {
	e := NewLocalEngine()
	_, err := e.HashBatch(context.Background(), [][]byte{{0x01}})
	if err == nil {
		t.Fatalf("expected error hashing before InitROM")
	}
}

func TestLocalEngineInitROMIdempotent(t *testing.T) {
	e := NewLocalEngine()
	ctx := context.Background()
	if err := e.InitROM(ctx, "np1"); err != nil {
		t.Fatalf("InitROM: %v", err)
	}
	if err := e.InitROM(ctx, "np1"); err != nil {
		t.Fatalf("InitROM (second call): %v", err)
	}
}

func TestLocalEngineKillWorkersRequiresReinit(t *testing.T) {
	e := NewLocalEngine()
	ctx := context.Background()
	if err := e.InitROM(ctx, "np1"); err != nil {
		t.Fatalf("InitROM: %v", err)
	}
	if err := e.KillWorkers(ctx); err != nil {
		t.Fatalf("KillWorkers: %v", err)
	}
	if e.IsROMReady() {
		t.Fatalf("expected ROM not ready after KillWorkers")
	}
}
