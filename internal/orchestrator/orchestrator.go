// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package orchestrator implements the C8 top-level state machine: it
// tracks the current challenge, partitions the worker pool across
// addresses, runs the submission protocol, interleaves developer-fee
// mining, and drives the watchdog and hourly reset.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"scavenger-miner/internal/config"
	"scavenger-miner/internal/devfee"
	"scavenger-miner/internal/hashengine"
	"scavenger-miner/internal/log"
	"scavenger-miner/internal/model"
	"scavenger-miner/internal/receipts"
	"scavenger-miner/internal/registrar"
	"scavenger-miner/internal/scavengerclient"
	"scavenger-miner/internal/workerpool"
)

var orchLog = log.Logger(log.SubsystemOrchestrator)

// PollInterval is the challenge poller tick, per spec.md §4.6.
const PollInterval = 2 * time.Second

// WatchdogInterval is the worker-health scan tick, per spec.md §4.8.
const WatchdogInterval = 30 * time.Second

// TransitionQuiescence is how long the orchestrator waits after tearing
// down worker state before reinitializing the hash engine, per spec.md
// §4.8 step 4.
const TransitionQuiescence = time.Second

// EventKind tags the variants of the orchestrator's event stream
// (spec.md §9's "typed variant stream").
type EventKind string

const (
	EventChallengeTransition EventKind = "challenge_transition"
	EventDifficultyChanged   EventKind = "difficulty_changed"
	EventSolutionFound       EventKind = "solution_found"
	EventWatchdogRestart     EventKind = "watchdog_restart"
	EventShutdown            EventKind = "shutdown"
)

// Event is one entry in the orchestrator's observer stream. The core
// never depends on an observer being attached.
type Event struct {
	Kind           EventKind
	Time           time.Time
	OldChallengeID string
	ChallengeID    string
	Address        string
	IsDevFee       bool
	Message        string
}

// Observer receives orchestrator events. It must not block.
type Observer func(Event)

// WalletAddresses supplies the set of wallet-owned mining addresses.
// Address derivation and signing live outside this module (spec.md §1);
// the orchestrator only reads the returned slice.
type WalletAddresses func() []model.Address

// Orchestrator is the C8 state machine.
type Orchestrator struct {
	cfg        *config.Config
	engine     hashengine.Engine
	scav       *scavengerclient.Client
	store      *receipts.Store
	fee        *devfee.Rotator
	registrar  *registrar.Registrar
	coord      *workerpool.Coordination
	addresses  WalletAddresses
	observer   Observer

	mu               sync.Mutex
	currentChallenge *model.Challenge
	isRunning        bool
	isMining         bool
	roundInProgress  bool
	userSolutions    int

	addrCursor int
	miningWG   sync.WaitGroup
}

// New constructs an Orchestrator. registerFn performs the actual
// registration HTTP call for an address (signing is the caller's
// concern); it is wrapped in a rate-limited registrar.Registrar.
func New(
	cfg *config.Config,
	engine hashengine.Engine,
	scav *scavengerclient.Client,
	store *receipts.Store,
	fee *devfee.Rotator,
	addresses WalletAddresses,
	registerFn registrar.Registerer,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		engine:    engine,
		scav:      scav,
		store:     store,
		fee:       fee,
		registrar: registrar.New(registerFn),
		coord:     workerpool.NewCoordination(),
		addresses: addresses,
	}
}

// SetObserver attaches an event observer. It is not safe to call once
// Run has started.
func (o *Orchestrator) SetObserver(obs Observer) {
	o.observer = obs
}

// Coordination exposes the worker coordination state for read-only
// consumers such as the optional status server.
func (o *Orchestrator) Coordination() *workerpool.Coordination {
	return o.coord
}

func (o *Orchestrator) emit(e Event) {
	if o.observer == nil {
		return
	}
	e.Time = time.Now()
	o.observer(e)
}

func (o *Orchestrator) isRunningFlag() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.isRunning
}

func (o *Orchestrator) setRunning(v bool) {
	o.mu.Lock()
	o.isRunning = v
	o.mu.Unlock()
}

func (o *Orchestrator) isMiningFlag() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.isMining
}

func (o *Orchestrator) setMining(v bool) {
	o.mu.Lock()
	o.isMining = v
	o.mu.Unlock()
}

func (o *Orchestrator) setRoundInProgress(v bool) {
	o.mu.Lock()
	o.roundInProgress = v
	o.mu.Unlock()
}

func (o *Orchestrator) isRoundInProgress() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.roundInProgress
}

func (o *Orchestrator) snapshotChallenge() *model.Challenge {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.currentChallenge
}

func (o *Orchestrator) currentChallengeID() string {
	c := o.snapshotChallenge()
	if c == nil {
		return ""
	}
	return c.ChallengeID
}

// Run drives the poll/watchdog/hourly-reset loop until ctx is canceled
// or the challenge window closes. It blocks.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.fee.SetReceiptLister(o.store)

	if err := o.loadSubmittedSolutions(); err != nil {
		orchLog.Errorf("failed to load submitted solutions from receipts: %v", err)
	}

	if err := o.registrar.RegisterAll(ctx, o.addresses()); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		orchLog.Errorf("startup registration pass failed: %v", err)
	}

	if !o.fee.PoolValid() {
		if _, err := o.fee.PrefetchAddressPool(ctx); err != nil {
			orchLog.Warnf("dev-fee mining disabled for this session: %v", err)
		}
	}

	o.setRunning(true)

	pollTicker := time.NewTicker(PollInterval)
	defer pollTicker.Stop()
	watchdogTicker := time.NewTicker(WatchdogInterval)
	defer watchdogTicker.Stop()
	hourlyTimer := time.NewTimer(durationUntilNextHour())
	defer hourlyTimer.Stop()

	for o.isRunningFlag() {
		select {
		case <-ctx.Done():
			o.setRunning(false)
			o.setMining(false)
			o.emit(Event{Kind: EventShutdown, Message: ctx.Err().Error()})
			return ctx.Err()

		case <-pollTicker.C:
			o.handlePoll(ctx)

		case <-watchdogTicker.C:
			o.runWatchdog(ctx)

		case <-hourlyTimer.C:
			o.runHourlyReset(ctx)
			hourlyTimer.Reset(time.Hour)
		}
	}
	return nil
}

func durationUntilNextHour() time.Duration {
	now := time.Now()
	next := now.Truncate(time.Hour).Add(time.Hour)
	return next.Sub(now)
}

func (o *Orchestrator) handlePoll(ctx context.Context) {
	resp, err := o.scav.FetchChallenge(ctx)
	if err != nil {
		orchLog.Errorf("challenge poll failed: %v", err)
		return
	}

	switch resp.Code {
	case model.ChallengeBefore:
		orchLog.Infof("challenge window not yet open")
		return

	case model.ChallengeAfter:
		orchLog.Infof("challenge window closed, shutting down")
		o.setRunning(false)
		o.setMining(false)
		o.emit(Event{Kind: EventShutdown, Message: "challenge window closed"})
		return

	case model.ChallengeActive:
		if resp.Challenge == nil {
			orchLog.Warnf("active challenge response carried no challenge body")
			return
		}
		old := o.snapshotChallenge()
		switch {
		case old == nil || old.ChallengeID != resp.Challenge.ChallengeID:
			o.handleTransition(ctx, old, resp.Challenge)
		case !old.MutableFieldsEqual(resp.Challenge):
			o.handleDifficultyChange(old, resp.Challenge)
		}
	}
}

// handleTransition runs the Transitioning sequence from spec.md §4.8.
func (o *Orchestrator) handleTransition(ctx context.Context, old, new_ *model.Challenge) {
	oldID := ""
	if old != nil {
		oldID = old.ChallengeID
	}
	orchLog.Infof("challenge transition %s -> %s", oldID, new_.ChallengeID)

	o.setMining(false)
	if err := o.engine.KillWorkers(ctx); err != nil {
		orchLog.Errorf("kill_workers failed during transition: %v", err)
	}
	o.coord.ResetForTransition()
	time.Sleep(TransitionQuiescence)

	needsRomInit := !o.engine.IsROMReady() || old == nil || new_.NoPreMine != old.NoPreMine
	if needsRomInit {
		romCtx, cancel := context.WithTimeout(ctx, hashengine.RomInitTimeout)
		err := o.engine.InitROM(romCtx, new_.NoPreMine)
		cancel()
		if err != nil {
			orchLog.Errorf("rom init failed during transition, waiting for next poll: %v", err)
			return
		}
	}

	o.mu.Lock()
	o.currentChallenge = new_
	o.addrCursor = 0
	o.mu.Unlock()

	o.loadChallengeState(new_.ChallengeID)
	o.emit(Event{Kind: EventChallengeTransition, OldChallengeID: oldID, ChallengeID: new_.ChallengeID})

	o.startMining(ctx)
}

func (o *Orchestrator) handleDifficultyChange(old, new_ *model.Challenge) {
	o.mu.Lock()
	o.currentChallenge = new_
	o.mu.Unlock()
	orchLog.Infof("difficulty changed for challenge %s", new_.ChallengeID)
	o.emit(Event{Kind: EventDifficultyChanged, ChallengeID: new_.ChallengeID})
}

// loadChallengeState logs the recovered solved-address count for the new
// challenge; SolvedSet itself is already populated from the startup
// recovery pass and persists for the life of the process.
func (o *Orchestrator) loadChallengeState(challengeID string) {
	solved := 0
	for _, addr := range o.addresses() {
		if o.coord.IsSolved(addr.Bech32, challengeID) {
			solved++
		}
	}
	orchLog.Infof("challenge %s: %d addresses already solved from prior receipts", challengeID, solved)
}

// runHourlyReset runs the Transitioning sequence's first five steps
// against the currently-held challenge, reinitializing the ROM
// unconditionally, per spec.md §4.8's hourly reset.
func (o *Orchestrator) runHourlyReset(ctx context.Context) {
	current := o.snapshotChallenge()
	if current == nil {
		return
	}
	orchLog.Infof("hourly reset for challenge %s", current.ChallengeID)

	o.setMining(false)
	if err := o.engine.KillWorkers(ctx); err != nil {
		orchLog.Errorf("kill_workers failed during hourly reset: %v", err)
	}
	o.coord.ResetForTransition()
	time.Sleep(TransitionQuiescence)

	romCtx, cancel := context.WithTimeout(ctx, hashengine.RomInitTimeout)
	err := o.engine.InitROM(romCtx, current.NoPreMine)
	cancel()
	if err != nil {
		orchLog.Errorf("rom init failed during hourly reset, waiting for next poll: %v", err)
		return
	}

	o.startMining(ctx)
}

// runWatchdog scans WorkerStats for stalled or stale-solved workers and
// restarts startMining if an issue is found. It is gated on no round
// currently being in flight to avoid racing the natural end-of-batch
// transition (spec.md §9 design note).
func (o *Orchestrator) runWatchdog(ctx context.Context) {
	if !o.isMiningFlag() {
		return
	}
	if o.isRoundInProgress() {
		return
	}

	challengeID := o.currentChallengeID()
	issue := false
	for _, stat := range o.coord.AllStats() {
		if stat.Status == model.WorkerIdle {
			issue = true
			break
		}
		if challengeID != "" && o.coord.IsSolved(stat.Address, challengeID) {
			issue = true
			break
		}
	}
	if !issue {
		return
	}

	orchLog.Warnf("watchdog detected a stalled worker, restarting startMining")
	o.emit(Event{Kind: EventWatchdogRestart, ChallengeID: challengeID})
	o.setMining(false)
	time.Sleep(time.Second)
	o.startMining(ctx)
}
