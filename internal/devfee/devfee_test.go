// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package devfee

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"scavenger-miner/internal/model"
)

func newTestRotator(t *testing.T, server *httptest.Server) *Rotator {
	t.Helper()
	dir := t.TempDir()
	r, err := New(filepath.Join(dir, "devfee.db"), server.URL, MainnetPrefixes, nil)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func validPoolResponse() prefetchResponse {
	var resp prefetchResponse
	for i := 0; i < poolSize; i++ {
		resp.Addresses[i] = model.DevFeeAddress{
			Address:      "night1dev" + string(rune('a'+i)),
			AddressIndex: i,
			Registered:   true,
		}
	}
	return resp
}

func TestPrefetchAddressPoolSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(validPoolResponse())
	}))
	defer srv.Close()

	r := newTestRotator(t, srv)
	ok, err := r.PrefetchAddressPool(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, r.PoolValid())
}

func TestPrefetchAddressPoolInvalidPrefixDisables(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := validPoolResponse()
		resp.Addresses[3].Address = "badprefix1xyz"
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	r := newTestRotator(t, srv)
	ok, err := r.PrefetchAddressPool(context.Background())
	require.Error(t, err)
	require.False(t, ok)
	require.False(t, r.PoolValid())
	require.False(t, r.Enabled())
}

func TestPrefetchAddressPoolHTTPFailureDisables(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := newTestRotator(t, srv)
	ok, err := r.PrefetchAddressPool(context.Background())
	require.Error(t, err)
	require.False(t, ok)
	require.False(t, r.PoolValid())
}

type fakeReceiptLister struct {
	receipts []model.ReceiptEntry
}

func (f *fakeReceiptLister) RecentReceipts(n int) ([]model.ReceiptEntry, error) {
	if len(f.receipts) <= n {
		return f.receipts, nil
	}
	return f.receipts[len(f.receipts)-n:], nil
}

func TestShouldMineDevFeeNowCadence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(validPoolResponse())
	}))
	defer srv.Close()

	r := newTestRotator(t, srv)
	_, err := r.PrefetchAddressPool(context.Background())
	require.NoError(t, err)

	fake := &fakeReceiptLister{}
	r.SetReceiptLister(fake)

	// Fewer than ratio-1 user receipts: not yet time.
	for i := 0; i < 10; i++ {
		fake.receipts = append(fake.receipts, model.ReceiptEntry{Hash: "h"})
	}
	should, err := r.ShouldMineDevFeeNow(false)
	require.NoError(t, err)
	require.False(t, should)

	// Seed up to ratio-1 == 16 user receipts (DefaultRatio=17).
	for len(fake.receipts) < DefaultRatio-1 {
		fake.receipts = append(fake.receipts, model.ReceiptEntry{Hash: "h"})
	}
	should, err = r.ShouldMineDevFeeNow(false)
	require.NoError(t, err)
	require.True(t, should)
}

func TestShouldMineDevFeeNowFalseIfRecentDevFeePresent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(validPoolResponse())
	}))
	defer srv.Close()

	r := newTestRotator(t, srv)
	_, err := r.PrefetchAddressPool(context.Background())
	require.NoError(t, err)

	fake := &fakeReceiptLister{}
	for i := 0; i < DefaultRatio; i++ {
		fake.receipts = append(fake.receipts, model.ReceiptEntry{Hash: "h", IsDevFee: i == 0})
	}
	r.SetReceiptLister(fake)

	should, err := r.ShouldMineDevFeeNow(false)
	require.NoError(t, err)
	require.False(t, should)
}

func TestShouldMineDevFeeNowFalseWhenPoolInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	r := newTestRotator(t, srv)
	r.PrefetchAddressPool(context.Background())

	should, err := r.ShouldMineDevFeeNow(false)
	require.NoError(t, err)
	require.False(t, should)
}

func TestGetDevFeeAddressRotatesAndResetsOnChallengeChange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(validPoolResponse())
	}))
	defer srv.Close()

	r := newTestRotator(t, srv)
	_, err := r.PrefetchAddressPool(context.Background())
	require.NoError(t, err)

	addr0, err := r.GetDevFeeAddress("C1")
	require.NoError(t, err)
	require.NoError(t, r.RecordDevFeeSolution("C1"))
	addr1, err := r.GetDevFeeAddress("C1")
	require.NoError(t, err)
	require.NotEqual(t, addr0.Bech32, addr1.Bech32)

	// A new challenge resets the rotation to slot 0.
	addrNewChallenge, err := r.GetDevFeeAddress("C2")
	require.NoError(t, err)
	require.Equal(t, addr0.Bech32, addrNewChallenge.Bech32)
}

func TestSyncWithReceiptsOverwritesMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(validPoolResponse())
	}))
	defer srv.Close()

	r := newTestRotator(t, srv)
	require.NoError(t, r.SyncWithReceipts(3))
	require.Equal(t, 3, r.TotalDevFeeSolutions())
	require.NoError(t, r.SyncWithReceipts(3))
	require.Equal(t, 3, r.TotalDevFeeSolutions())
}
