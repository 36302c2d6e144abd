// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package orchestrator

// loadSubmittedSolutions replays the receipts log into the coordination
// state at startup, per spec.md §4.8 "Recovery from receipts": every
// receipt's hash goes into SubmittedHashes and its (address,
// challenge_id) pair into SolvedSet, user solutions are counted, and the
// dev-fee cache total is reconciled against the actual receipt count.
func (o *Orchestrator) loadSubmittedSolutions() error {
	allReceipts, err := o.store.ReadAllReceipts()
	if err != nil {
		return err
	}

	devFeeCount := 0
	userCount := 0
	for _, r := range allReceipts {
		o.coord.MarkSubmittedHash(r.Hash)
		o.coord.MarkSolved(r.Address, r.ChallengeID)
		if r.IsDevFee {
			devFeeCount++
		} else {
			userCount++
		}
	}

	o.mu.Lock()
	o.userSolutions = userCount
	o.mu.Unlock()

	if err := o.fee.SyncWithReceipts(devFeeCount); err != nil {
		orchLog.Errorf("failed to sync dev-fee cache with receipts: %v", err)
	}

	orchLog.Infof("recovered %d receipts (%d user, %d dev-fee) from disk", len(allReceipts), userCount, devFeeCount)
	return nil
}
