// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package devfee implements the C5 developer-fee rotator: a pool of 10
// rotating third-party addresses mined at a fixed statistical ratio
// alongside user addresses.
package devfee

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"scavenger-miner/internal/log"
	"scavenger-miner/internal/merr"
	"scavenger-miner/internal/model"
)

const (
	poolSize = 10

	// DefaultRatio is the default 1-in-N dev-fee density.
	DefaultRatio = 17

	prefetchTimeout = 10 * time.Second
)

var feeLog = log.Logger(log.SubsystemDevFee)

// MainnetPrefixes and TestnetPrefixes are the known bech32 human-readable
// parts a dev-fee address must start with to be considered valid.
var (
	MainnetPrefixes = []string{"night1"}
	TestnetPrefixes = []string{"night_test1", "nighttest1"}
)

// ReceiptLister is the subset of the receipts store the rotator needs to
// evaluate should_mine_dev_fee_now's sliding-window rule.
type ReceiptLister interface {
	RecentReceipts(n int) ([]model.ReceiptEntry, error)
}

// Rotator is the C5 dev-fee rotator. It is safe for concurrent use.
type Rotator struct {
	cache          *Cache
	receipts       ReceiptLister
	httpClient     *http.Client
	prefetchURL    string
	validPrefixes  []string

	mu                    sync.Mutex
	state                 persistedState
	solutionsThisChallenge int
	currentChallengeID    string
	pool                  [poolSize]model.DevFeeAddress
	poolValid             bool
}

// persistedState is the cache-file-backed portion of the rotator's state.
type persistedState struct {
	ClientID             string                   `json:"clientId"`
	Enabled              bool                     `json:"enabled"`
	Ratio                int                      `json:"ratio"`
	Pool                 [poolSize]model.DevFeeAddress `json:"pool"`
	PoolFetchedAt        time.Time                `json:"poolFetchedAt"`
	TotalDevFeeSolutions int                      `json:"totalDevFeeSolutions"`
}

// New constructs a Rotator backed by cachePath, fetching addresses from
// prefetchURL and validating them against validPrefixes (mainnet or
// testnet depending on the active network). It loads any prior
// persisted state from the cache file.
func New(cachePath, prefetchURL string, validPrefixes []string, httpClient *http.Client) (*Rotator, error) {
	cache, err := OpenCache(cachePath)
	if err != nil {
		return nil, err
	}

	r := &Rotator{
		cache:         cache,
		httpClient:    httpClient,
		prefetchURL:   prefetchURL,
		validPrefixes: validPrefixes,
	}
	if httpClient == nil {
		r.httpClient = &http.Client{Timeout: prefetchTimeout}
	}

	state, found, err := cache.Load()
	if err != nil {
		return nil, err
	}
	if found {
		r.state = state
	} else {
		clientID, err := newClientID()
		if err != nil {
			return nil, err
		}
		r.state = persistedState{ClientID: clientID, Enabled: true, Ratio: DefaultRatio}
		if err := cache.Save(r.state); err != nil {
			return nil, err
		}
	}
	if r.state.Ratio == 0 {
		r.state.Ratio = DefaultRatio
	}
	if found && hasFullValidPool(r.state.Pool, validPrefixes) {
		r.pool = r.state.Pool
		r.poolValid = true
	}
	return r, nil
}

// hasFullValidPool reports whether pool contains poolSize addresses that
// still pass the prefix check, so a cache saved under a different network
// is not trusted across a restart.
func hasFullValidPool(pool [poolSize]model.DevFeeAddress, validPrefixes []string) bool {
	for _, addr := range pool {
		if !hasValidPrefix(addr.Address, validPrefixes) {
			return false
		}
	}
	return true
}

// SetReceiptLister wires the receipts store used by
// ShouldMineDevFeeNow's sliding-window check. It is separated from New
// so tests can substitute a fake without touching the cache file.
func (r *Rotator) SetReceiptLister(rl ReceiptLister) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts = rl
}

func newClientID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Enabled reports whether dev-fee mining is active for this session.
func (r *Rotator) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Enabled
}

// SetEnabled toggles dev-fee mining and persists the change.
func (r *Rotator) SetEnabled(enabled bool) error {
	r.mu.Lock()
	r.state.Enabled = enabled
	state := r.state
	r.mu.Unlock()
	return r.cache.Save(state)
}

type prefetchRequest struct {
	ClientID   string `json:"clientId"`
	ClientType string `json:"clientType"`
}

type prefetchResponse struct {
	Addresses [poolSize]model.DevFeeAddress `json:"addresses"`
}

// PrefetchAddressPool issues the one HTTP call that fetches the current
// rotation pool, validating every address's prefix. On any failure it
// disables the rotator for the session and returns false, per
// spec.md §4.5.
func (r *Rotator) PrefetchAddressPool(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, prefetchTimeout)
	defer cancel()

	body, err := json.Marshal(prefetchRequest{
		ClientID:   r.state.ClientID,
		ClientType: "desktop",
	})
	if err != nil {
		return r.disableOnPrefetchFailure(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.prefetchURL, bytes.NewReader(body))
	if err != nil {
		return r.disableOnPrefetchFailure(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return r.disableOnPrefetchFailure(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return r.disableOnPrefetchFailure(fmt.Errorf("prefetch returned status %d", resp.StatusCode))
	}

	var parsed prefetchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return r.disableOnPrefetchFailure(err)
	}

	for i, addr := range parsed.Addresses {
		if !hasValidPrefix(addr.Address, r.validPrefixes) {
			return r.disableOnPrefetchFailure(fmt.Errorf("address %d %q has invalid prefix", i, addr.Address))
		}
	}

	r.mu.Lock()
	r.pool = parsed.Addresses
	r.poolValid = true
	r.state.Pool = parsed.Addresses
	r.state.PoolFetchedAt = time.Now()
	state := r.state
	r.mu.Unlock()

	if err := r.cache.Save(state); err != nil {
		feeLog.Warnf("failed to persist dev-fee pool: %v", err)
	}
	feeLog.Infof("dev-fee address pool refreshed (%d addresses)", poolSize)
	return true, nil
}

func (r *Rotator) disableOnPrefetchFailure(cause error) (bool, error) {
	r.mu.Lock()
	r.pool = [poolSize]model.DevFeeAddress{}
	r.poolValid = false
	persistedEnabled := r.state.Enabled
	r.state.Enabled = false
	state := r.state
	// The cached enabled flag is left as it was: the disable lasts for
	// this session only.
	state.Enabled = persistedEnabled
	r.mu.Unlock()

	if err := r.cache.Save(state); err != nil {
		feeLog.Warnf("failed to persist dev-fee disable: %v", err)
	}
	feeLog.Warnf("dev-fee pool prefetch failed, disabling for session: %v", cause)
	return false, merr.New(merr.ErrDevFeePoolInvalid, "dev-fee address pool prefetch failed", cause)
}

func hasValidPrefix(addr string, prefixes []string) bool {
	if addr == "" {
		return false
	}
	for _, p := range prefixes {
		if strings.HasPrefix(addr, p) {
			return true
		}
	}
	return false
}

// onChallengeChangeLocked resets solutions_this_challenge when the current
// challenge id changes, per spec.md §4.5. Caller must hold r.mu.
func (r *Rotator) onChallengeChangeLocked(challengeID string) {
	if r.currentChallengeID != challengeID {
		r.currentChallengeID = challengeID
		r.solutionsThisChallenge = 0
	}
}

// ShouldMineDevFeeNow reports whether the next solution mined should
// target a dev-fee address. It is true iff the rotator is enabled, the
// pool is valid, the caller is not already mining a dev-fee address, and
// among the last Ratio persisted receipts there is no dev-fee entry
// while at least Ratio-1 user receipts are present (spec.md §4.5).
func (r *Rotator) ShouldMineDevFeeNow(alreadyMiningDevFee bool) (bool, error) {
	r.mu.Lock()
	enabled := r.state.Enabled
	poolValid := r.poolValid
	ratio := r.state.Ratio
	receiptsStore := r.receipts
	r.mu.Unlock()

	if !enabled || !poolValid || alreadyMiningDevFee {
		return false, nil
	}
	if receiptsStore == nil {
		return false, nil
	}

	recent, err := receiptsStore.RecentReceipts(ratio)
	if err != nil {
		return false, err
	}

	userCount := 0
	for _, rec := range recent {
		if rec.IsDevFee {
			return false, nil
		}
		userCount++
	}
	return userCount >= ratio-1, nil
}

// GetDevFeeAddress returns the address this solution should target:
// pool[solutions_this_challenge mod 10], resetting the per-challenge
// counter first if currentChallengeID has changed.
func (r *Rotator) GetDevFeeAddress(challengeID string) (model.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.poolValid {
		return model.Address{}, merr.New(merr.ErrDevFeePoolInvalid, "dev-fee pool not available", nil)
	}
	r.onChallengeChangeLocked(challengeID)

	slot := r.pool[r.solutionsThisChallenge%poolSize]
	return model.Address{
		Index:      model.DevFeeAddressIndex,
		Bech32:     slot.Address,
		Registered: slot.Registered,
	}, nil
}

// RecordDevFeeSolution increments the monotone total and the
// per-challenge counter, then persists the cache.
func (r *Rotator) RecordDevFeeSolution(challengeID string) error {
	r.mu.Lock()
	r.onChallengeChangeLocked(challengeID)
	r.solutionsThisChallenge++
	r.state.TotalDevFeeSolutions++
	state := r.state
	r.mu.Unlock()
	return r.cache.Save(state)
}

// TotalDevFeeSolutions returns the cached monotone dev-fee solution
// count.
func (r *Rotator) TotalDevFeeSolutions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.TotalDevFeeSolutions
}

// SyncWithReceipts overwrites the cached total with actualCount when
// they disagree at startup, per spec.md §4.5's receipt/cache
// consistency invariant. The receipts file is authoritative.
func (r *Rotator) SyncWithReceipts(actualCount int) error {
	r.mu.Lock()
	if r.state.TotalDevFeeSolutions == actualCount {
		r.mu.Unlock()
		return nil
	}
	feeLog.Infof("dev-fee cache count %d disagrees with receipts count %d, syncing",
		r.state.TotalDevFeeSolutions, actualCount)
	r.state.TotalDevFeeSolutions = actualCount
	state := r.state
	r.mu.Unlock()
	return r.cache.Save(state)
}

// PoolValid reports whether a prefetched pool of exactly 10 validated
// addresses is currently held.
func (r *Rotator) PoolValid() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.poolValid
}

// Close releases the underlying cache store.
func (r *Rotator) Close() error {
	return r.cache.Close()
}
