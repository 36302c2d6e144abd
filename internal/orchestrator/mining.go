// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"scavenger-miner/internal/model"
	"scavenger-miner/internal/workerpool"
)

// startMining implements spec.md §4.8's startMining(): it waits for any
// prior mining loop to fully drain, then launches a fresh one if there
// is at least one registered, unsolved address for the current
// challenge.
func (o *Orchestrator) startMining(ctx context.Context) {
	o.miningWG.Wait()

	challenge := o.snapshotChallenge()
	if challenge == nil {
		return
	}
	if len(registeredUnsolved(o, challenge.ChallengeID)) == 0 {
		orchLog.Infof("no addresses left to mine for challenge %s", challenge.ChallengeID)
		o.setMining(false)
		return
	}

	o.setMining(true)
	o.miningWG.Add(1)
	go o.miningLoop(ctx)
}

// registeredUnsolved returns the wallet addresses registered with the
// service and not yet solved for challengeID; this is §4.8's R.
func registeredUnsolved(o *Orchestrator, challengeID string) []model.Address {
	all := o.addresses()
	out := make([]model.Address, 0, len(all))
	for _, a := range all {
		if !a.Registered {
			continue
		}
		if o.coord.IsSolved(a.Bech32, challengeID) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// miningLoop runs continuous batched rounds until the challenge changes,
// every address is solved, or the orchestrator stops mining.
func (o *Orchestrator) miningLoop(ctx context.Context) {
	defer o.miningWG.Done()

	for {
		if ctx.Err() != nil || !o.isMiningFlag() {
			return
		}

		challenge := o.snapshotChallenge()
		if challenge == nil {
			o.setMining(false)
			return
		}

		candidates := registeredUnsolved(o, challenge.ChallengeID)
		if len(candidates) == 0 {
			orchLog.Infof("all addresses solved for challenge %s", challenge.ChallengeID)
			o.setMining(false)
			return
		}

		workingSet := candidates
		devFeeAddr, hasDevFee := o.maybeInjectDevFee(challenge.ChallengeID)
		if hasDevFee {
			workingSet = append([]model.Address{devFeeAddr}, candidates...)
		}

		groupSizes := CalculateWorkerGroups(o.cfg.WorkerThreads, len(workingSet), o.cfg.WorkerGrouping, o.cfg.WorkersPerAddress)
		pickCount := len(groupSizes)
		if hasDevFee {
			pickCount--
		}
		chosen := o.pickNext(candidates, pickCount)

		selected := chosen
		if hasDevFee {
			selected = append([]model.Address{devFeeAddr}, chosen...)
		}
		if len(selected) == 0 {
			continue
		}
		groupSizes = groupSizes[:len(selected)]

		o.setRoundInProgress(true)
		o.runRound(ctx, challenge, selected, groupSizes)
		o.setRoundInProgress(false)
	}
}

// maybeInjectDevFee checks the dev-fee cadence rule and, when it fires,
// returns the synthetic address to prepend to this batch (spec.md §4.8
// "Dev-fee injection").
func (o *Orchestrator) maybeInjectDevFee(challengeID string) (model.Address, bool) {
	should, err := o.fee.ShouldMineDevFeeNow(false)
	if err != nil {
		orchLog.Warnf("dev-fee cadence check failed: %v", err)
		return model.Address{}, false
	}
	if !should {
		return model.Address{}, false
	}
	addr, err := o.fee.GetDevFeeAddress(challengeID)
	if err != nil {
		orchLog.Warnf("dev-fee address unavailable: %v", err)
		return model.Address{}, false
	}
	return addr, true
}

// pickNext selects up to n addresses from candidates starting at the
// orchestrator's cycling cursor, wrapping around the end of the list,
// and advances the cursor for the next call (spec.md §4.8 "continuous
// cycling until challenge changes or all addresses solved").
func (o *Orchestrator) pickNext(candidates []model.Address, n int) []model.Address {
	if n <= 0 || len(candidates) == 0 {
		return nil
	}
	if n > len(candidates) {
		n = len(candidates)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.Address, 0, n)
	for i := 0; i < n; i++ {
		idx := (o.addrCursor + i) % len(candidates)
		out = append(out, candidates[idx])
	}
	o.addrCursor = (o.addrCursor + n) % len(candidates)
	return out
}

// runRound spawns one worker per worker id per selected address and
// waits for the whole batch to complete, per spec.md §4.8.
func (o *Orchestrator) runRound(ctx context.Context, challenge *model.Challenge, selected []model.Address, groupSizes []int) {
	g, gctx := errgroup.WithContext(ctx)

	workerID := 0
	for i, addr := range selected {
		count := groupSizes[i]
		addr := addr
		snapshot := challenge.Clone()
		for k := 0; k < count; k++ {
			id := workerID
			workerID++

			w := workerpool.NewWorker(id, addr, o.cfg.BatchSize, o.cfg.MaxSubmissionFailures)
			w.Engine = o.engine
			w.Coord = o.coord
			w.Submit = o.submitSolution
			w.CurrentChallengeID = o.currentChallengeID
			w.CurrentChallengeSnapshot = o.snapshotChallenge

			g.Go(func() error {
				w.Run(gctx, snapshot)
				return nil
			})
		}
	}
	_ = g.Wait()
}
