// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package registrar rate-limits address registration against the
// scavenger service, per spec.md §5's "1.5 s between registrations".
package registrar

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"scavenger-miner/internal/log"
	"scavenger-miner/internal/model"
)

// RegistrationInterval is the minimum spacing between registration
// POSTs, per spec.md §5.
const RegistrationInterval = 1500 * time.Millisecond

var regLog = log.Logger(log.SubsystemRegistrar)

// Registerer performs the actual registration HTTP call. Key derivation,
// signing, and the registration request itself are out of scope for
// this module (spec.md §1); the orchestrator supplies a closure wrapping
// whatever wallet-side implementation it has.
type Registerer func(ctx context.Context, addr model.Address) error

// Registrar wraps a Registerer with the rate limit from spec.md §5.
type Registrar struct {
	limiter *rate.Limiter
	do      Registerer
}

// New returns a Registrar that allows at most one call to do every
// RegistrationInterval.
func New(do Registerer) *Registrar {
	return &Registrar{
		limiter: rate.NewLimiter(rate.Every(RegistrationInterval), 1),
		do:      do,
	}
}

// Register blocks until the rate limiter admits the call, then performs
// the registration.
func (r *Registrar) Register(ctx context.Context, addr model.Address) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	regLog.Debugf("registering address %s", addr.Bech32)
	return r.do(ctx, addr)
}

// RegisterAll registers every unregistered address in addrs in order,
// respecting the rate limit between each call. Per-address failures are
// logged and skipped rather than aborting the remaining addresses,
// consistent with spec.md §7's "no error should terminate the process";
// the context being canceled is the one condition that does stop early.
func (r *Registrar) RegisterAll(ctx context.Context, addrs []model.Address) error {
	for i := range addrs {
		if addrs[i].Registered {
			continue
		}
		if err := r.Register(ctx, addrs[i]); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			regLog.Errorf("failed to register address %s: %v", addrs[i].Bech32, err)
			continue
		}
		addrs[i].Registered = true
	}
	return nil
}
