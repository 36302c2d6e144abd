// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package difficulty implements the scavenger service's acceptance
// predicate: a hash is accepted iff it is bitwise-dominated by the
// difficulty mask.
package difficulty

import "encoding/hex"

// Matches reports whether hash is accepted under difficulty: every bit
// set in hash must also be set in difficulty. Both arguments are
// fixed-length big-endian byte sequences; a length mismatch is treated
// as non-acceptance rather than an error, since it can only arise from a
// malformed target.
func Matches(hash, target []byte) bool {
	if len(hash) != len(target) {
		return false
	}
	for i := range hash {
		if hash[i]&^target[i] != 0 {
			return false
		}
	}
	return true
}

// MatchesHex is a convenience wrapper over Matches for hex-encoded
// inputs, as received from the wire (hash from the hash engine,
// difficulty from the challenge descriptor).
func MatchesHex(hashHex, targetHex string) (bool, error) {
	hash, err := hex.DecodeString(hashHex)
	if err != nil {
		return false, err
	}
	target, err := hex.DecodeString(targetHex)
	if err != nil {
		return false, err
	}
	return Matches(hash, target), nil
}

// ZeroBitPrefix reports the number of leading zero bits in the
// difficulty mask, exposed for logging only (spec.md §4.2) so operators
// can eyeball relative difficulty across challenges.
func ZeroBitPrefix(target []byte) int {
	count := 0
	for _, b := range target {
		if b == 0 {
			count += 8
			continue
		}
		for mask := byte(0x80); mask != 0; mask >>= 1 {
			if b&mask != 0 {
				return count
			}
			count++
		}
	}
	return count
}

// ZeroBitPrefixHex is the hex-decoding convenience wrapper for
// ZeroBitPrefix.
func ZeroBitPrefixHex(targetHex string) (int, error) {
	target, err := hex.DecodeString(targetHex)
	if err != nil {
		return 0, err
	}
	return ZeroBitPrefix(target), nil
}
