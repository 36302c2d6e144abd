// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package orchestrator

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/davecgh/go-spew/spew"

	"scavenger-miner/internal/merr"
	"scavenger-miner/internal/model"
	"scavenger-miner/internal/scavengerclient"
	"scavenger-miner/internal/workerpool"
)

// submitSolution implements the §4.8 submission protocol. It satisfies
// workerpool.SubmitFunc: a nil return means the worker should treat
// (address, challenge) as solved.
func (o *Orchestrator) submitSolution(ctx context.Context, req workerpool.SubmissionRequest) error {
	return o.submitSolutionAttempt(ctx, req, false)
}

func (o *Orchestrator) submitSolutionAttempt(ctx context.Context, req workerpool.SubmissionRequest, isRetry bool) error {
	result, err := o.scav.SubmitSolution(ctx, req.Address.Bech32, req.ChallengeID, req.Nonce)
	if err == nil {
		o.recordAcceptedSolution(req, result)
		return nil
	}

	switch {
	case merr.IsKind(err, merr.ErrDuplicateSolution):
		o.appendError(req, "DuplicateSolution", "benign duplicate: "+err.Error())
		o.coord.MarkSolved(req.Address.Bech32, req.ChallengeID)
		return nil

	case merr.IsKind(err, merr.ErrAddressUnregistered):
		if isRetry {
			o.appendError(req, "AddressUnregistered", err.Error())
			return err
		}
		if regErr := o.registrar.Register(ctx, req.Address); regErr != nil {
			o.appendError(req, "RegistrationFailed", regErr.Error())
			return err
		}
		return o.submitSolutionAttempt(ctx, req, true)

	case merr.IsKind(err, merr.ErrSubmissionTimeout):
		o.appendError(req, "SubmissionTimeout", "uncertain submission outcome: "+err.Error())
		return err

	default:
		o.appendError(req, "SubmissionRejected", err.Error())
		orchLog.Tracef("rejected submission payload: %s", spew.Sdump(req))
		return err
	}
}

func (o *Orchestrator) recordAcceptedSolution(req workerpool.SubmissionRequest, result *scavengerclient.SubmissionResult) {
	o.mu.Lock()
	if !req.IsDevFee {
		o.userSolutions++
	}
	o.mu.Unlock()

	var cryptoReceipt string
	if result != nil && len(result.CryptoReceipt) > 0 {
		cryptoReceipt = string(result.CryptoReceipt)
	}

	entry := model.ReceiptEntry{
		Timestamp:     time.Now(),
		Address:       req.Address.Bech32,
		AddressIndex:  req.Address.Index,
		ChallengeID:   req.ChallengeID,
		Nonce:         req.Nonce,
		Hash:          hex.EncodeToString(req.Hash),
		CryptoReceipt: cryptoReceipt,
		IsDevFee:      req.IsDevFee,
	}
	if err := o.store.AppendReceipt(entry); err != nil {
		orchLog.Errorf("failed to append receipt for %s: %v", req.Address.Bech32, err)
	}

	if req.IsDevFee {
		if err := o.fee.RecordDevFeeSolution(req.ChallengeID); err != nil {
			orchLog.Errorf("failed to record dev-fee solution: %v", err)
		}
	}

	orchLog.Infof("solution accepted: address=%s challenge=%s devfee=%v", req.Address.Bech32, req.ChallengeID, req.IsDevFee)
	o.emit(Event{
		Kind:        EventSolutionFound,
		ChallengeID: req.ChallengeID,
		Address:     req.Address.Bech32,
		IsDevFee:    req.IsDevFee,
	})
}

func (o *Orchestrator) appendError(req workerpool.SubmissionRequest, kind, message string) {
	entry := model.ErrorEntry{
		Timestamp:    time.Now(),
		Address:      req.Address.Bech32,
		AddressIndex: req.Address.Index,
		ChallengeID:  req.ChallengeID,
		Nonce:        req.Nonce,
		Kind:         kind,
		Message:      message,
	}
	if err := o.store.AppendError(entry); err != nil {
		orchLog.Errorf("failed to append error entry for %s: %v", req.Address.Bech32, err)
	}
}
