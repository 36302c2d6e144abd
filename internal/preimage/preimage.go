// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package preimage assembles the byte sequence the hash engine hashes
// for a single nonce attempt. The exact layout is an external protocol
// contract with the scavenger service; only determinism matters here,
// not the choice of field order relative to any particular reference
// implementation.
package preimage

import (
	"encoding/binary"
	"encoding/hex"

	"scavenger-miner/internal/model"
)

// NonceHexLen is the fixed width of the hex-encoded nonce expected by
// the scavenger service (spec.md §4.3: "nonce_hex_16").
const NonceHexLen = 16

// EncodeNonce renders a 64-bit nonce counter as a fixed-width 16-char
// hex string, zero padded, matching the wire format nonce_hex_16.
func EncodeNonce(nonce uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	return hex.EncodeToString(buf[:])
}

// Build assembles the deterministic byte sequence hashed for a single
// nonce attempt: the nonce, the bech32 address, and the mutable
// challenge fields that participate in the protocol (latest_submission,
// no_pre_mine_hour). challenge_id itself is not part of the preimage:
// it identifies which round is being mined, not the input to the hash.
func Build(nonceHex string, address string, challenge *model.Challenge) []byte {
	buf := make([]byte, 0, len(nonceHex)+len(address)+len(challenge.LatestSubmission)+len(challenge.NoPreMineHour)+3)
	buf = append(buf, []byte(nonceHex)...)
	buf = append(buf, ':')
	buf = append(buf, []byte(address)...)
	buf = append(buf, ':')
	buf = append(buf, []byte(challenge.LatestSubmission)...)
	buf = append(buf, ':')
	buf = append(buf, []byte(challenge.NoPreMineHour)...)
	return buf
}
