// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package receipts

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"scavenger-miner/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "receipts.jsonl"), filepath.Join(dir, "errors.jsonl"))
	require.NoError(t, err)
	return s
}

func TestAppendAndReadReceipts(t *testing.T) {
	s := newTestStore(t)

	entries := []model.ReceiptEntry{
		{Timestamp: time.Now(), Address: "addr1", ChallengeID: "C1", Hash: "h1"},
		{Timestamp: time.Now(), Address: "addr2", ChallengeID: "C1", Hash: "h2", IsDevFee: true},
	}
	for _, e := range entries {
		require.NoError(t, s.AppendReceipt(e))
	}

	got, err := s.ReadAllReceipts()
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "addr1", got[0].Address)
	require.True(t, got[1].IsDevFee)
}

func TestRecentReceiptsTail(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendReceipt(model.ReceiptEntry{Hash: string(rune('a' + i))}))
	}
	recent, err := s.RecentReceipts(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "d", recent[0].Hash)
	require.Equal(t, "e", recent[1].Hash)
}

func TestAppendAndReadErrors(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AppendError(model.ErrorEntry{
		Address: "addr1", ChallengeID: "C1", Kind: "DuplicateSolution",
		Message: "benign duplicate",
	}))
	got, err := s.ReadAllErrors()
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "DuplicateSolution", got[0].Kind)
}

func TestReadAllReceiptsEmptyFileIsNotError(t *testing.T) {
	s := newTestStore(t)
	got, err := s.ReadAllReceipts()
	require.NoError(t, err)
	require.Empty(t, got)
}
