// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package preimage

import (
	"testing"

	"scavenger-miner/internal/model"
)

func TestEncodeNonceFixedWidth(t *testing.T) {
	got := EncodeNonce(1)
	if len(got) != NonceHexLen {
		t.Fatalf("expected %d-char nonce, got %d (%s)", NonceHexLen, len(got), got)
	}
}

func TestBuildDeterministic(t *testing.T) {
	ch := &model.Challenge{
		ChallengeID:      "C1",
		LatestSubmission: "abc",
		NoPreMineHour:    "hour1",
	}
	nonce := EncodeNonce(42)
	a := Build(nonce, "bech32addr", ch)
	b := Build(nonce, "bech32addr", ch)
	if string(a) != string(b) {
		t.Fatalf("Build is not deterministic: %q != %q", a, b)
	}

	ch2 := ch.Clone()
	ch2.NoPreMineHour = "hour2"
	c := Build(nonce, "bech32addr", ch2)
	if string(a) == string(c) {
		t.Fatalf("expected preimage to change when no_pre_mine_hour changes")
	}
}
