// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package registrar

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"scavenger-miner/internal/model"
)

func TestRegisterAllSkipsAlreadyRegistered(t *testing.T) {
	var calls int32
	r := New(func(ctx context.Context, addr model.Address) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	addrs := []model.Address{
		{Bech32: "addr1", Registered: true},
		{Bech32: "addr2", Registered: false},
	}
	require.NoError(t, r.RegisterAll(context.Background(), addrs))
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	require.True(t, addrs[1].Registered)
}

func TestRegisterRespectsRateLimit(t *testing.T) {
	var times []time.Time
	r := New(func(ctx context.Context, addr model.Address) error {
		times = append(times, time.Now())
		return nil
	})

	addrs := []model.Address{{Bech32: "a"}, {Bech32: "b"}}
	start := time.Now()
	require.NoError(t, r.RegisterAll(context.Background(), addrs))
	require.Len(t, times, 2)
	// The first call is admitted immediately (burst of 1); only the
	// second should be throttled towards RegistrationInterval.
	require.WithinDuration(t, start, times[0], 200*time.Millisecond)
	require.GreaterOrEqual(t, times[1].Sub(times[0]), RegistrationInterval-100*time.Millisecond)
}
