// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package difficulty

import "testing"

func TestMatches(t *testing.T) {
	tests := []struct {
		name   string
		hash   []byte
		target []byte
		want   bool
	}{
		{"allOnesTargetAcceptsEverything", []byte{0xFF, 0x00, 0xAB}, []byte{0xFF, 0xFF, 0xFF}, true},
		{"allZeroTargetAcceptsOnlyZeroHash", []byte{0x00, 0x00, 0x00}, []byte{0x00, 0x00, 0x00}, true},
		{"allZeroTargetRejectsNonZeroHash", []byte{0x00, 0x01, 0x00}, []byte{0x00, 0x00, 0x00}, false},
		{"exactDomination", []byte{0x0F, 0x0A}, []byte{0xFF, 0x0F}, true},
		{"bitNotInTarget", []byte{0x10, 0x00}, []byte{0x0F, 0xFF}, false},
		{"lengthMismatch", []byte{0x00}, []byte{0x00, 0x00}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.hash, tt.target); got != tt.want {
				t.Errorf("Matches(%x, %x) = %v, want %v", tt.hash, tt.target, got, tt.want)
			}
		})
	}
}

func TestZeroBitPrefix(t *testing.T) {
	tests := []struct {
		name   string
		target []byte
		want   int
	}{
		{"allZero", []byte{0x00, 0x00}, 16},
		{"allOnes", []byte{0xFF, 0xFF}, 0},
		{"leadingZeroByteThenBit", []byte{0x00, 0x0F}, 12},
		{"firstBitSet", []byte{0x80, 0x00}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ZeroBitPrefix(tt.target); got != tt.want {
				t.Errorf("ZeroBitPrefix(%x) = %d, want %d", tt.target, got, tt.want)
			}
		})
	}
}

func TestMatchesHex(t *testing.T) {
	got, err := MatchesHex("0f0a", "ff0f")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Errorf("expected match")
	}
}
