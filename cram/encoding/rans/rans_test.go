// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rans

import (
	"bytes"
	"errors"
	"testing"
)

// TestDecodeOrder0 decodes the literal CRAM order-0 rANS stream given in
// spec.md section 8, scenario 1.
func TestDecodeOrder0(t *testing.T) {
	data := []byte{
		0x00, 0x25, 0x00, 0x00, 0x00, 0x07, 0x00, 0x00, 0x00, 0x64, 0x82, 0x49, 0x65, 0x00, 0x82,
		0x49, 0x6c, 0x82, 0x49, 0x6e, 0x82, 0x49, 0x6f, 0x00, 0x84, 0x92, 0x73, 0x82, 0x49, 0x00,
		0xe2, 0x06, 0x83, 0x18, 0x74, 0x7b, 0x41, 0x0c, 0x2b, 0xa9, 0x41, 0x0c, 0x25, 0x31, 0x80,
		0x03,
	}
	got, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := "noodles"
	if string(got) != want {
		t.Errorf("Decode() = %q, want %q", got, want)
	}
}

// TestDecodeOrder1 decodes the literal CRAM order-1 rANS stream given in
// spec.md section 8, scenario 2: a sparse context-table set followed by
// four lane states, decoding each output quarter on its own lane.
func TestDecodeOrder1(t *testing.T) {
	data := []byte{
		0x01, 0x3b, 0x00, 0x00, 0x00, 0x07, 0x00, 0x00, 0x00, 0x00, 0x64, 0x84, 0x00, 0x6e,
		0x84, 0x00, 0x6f, 0x00, 0x87, 0xff, 0x00, 0x64, 0x6c, 0x8f, 0xff, 0x00, 0x65, 0x00,
		0x73, 0x8f, 0xff, 0x00, 0x6c, 0x65, 0x8f, 0xff, 0x00, 0x6e, 0x6f, 0x8f, 0xff, 0x00,
		0x6f, 0x00, 0x64, 0x87, 0xff, 0x6f, 0x88, 0x00, 0x00, 0x00, 0x00, 0x04, 0x00, 0x02,
		0x02, 0x28, 0x00, 0x01, 0x02, 0x28, 0x00, 0x01, 0x02, 0x60, 0x00, 0x02,
	}
	got, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := "noodles"
	if string(got) != want {
		t.Errorf("Decode() = %q, want %q", got, want)
	}
}

// TestReadFreqTable parses the order-0 literal vector's frequency table in
// isolation, checking both halves of the symbol run-length scheme: an
// explicit non-consecutive symbol, and a consecutive symbol introducing a
// run byte.
func TestReadFreqTable(t *testing.T) {
	// The "noodles" table: d, then e (consecutive, run 0), then l, n, then
	// o (consecutive, run 0), then s, terminated by symbol 0.
	data := []byte{
		0x64, 0x82, 0x49, 0x65, 0x00, 0x82, 0x49, 0x6c, 0x82, 0x49, 0x6e,
		0x82, 0x49, 0x6f, 0x00, 0x84, 0x92, 0x73, 0x82, 0x49, 0x00,
	}
	tab, err := readFreqTable(&byteReader{r: bytes.NewReader(data)})
	if err != nil {
		t.Fatalf("readFreqTable: %v", err)
	}
	wantFreq := map[byte]uint32{'d': 585, 'e': 585, 'l': 585, 'n': 585, 'o': 1170, 's': 585}
	for sym, want := range wantFreq {
		if got := tab.freq[sym]; got != want {
			t.Errorf("freq[%q] = %d, want %d", sym, got, want)
		}
	}
	if got, want := tab.cumFreq['n'], uint32(585*3); got != want {
		t.Errorf("cumFreq['n'] = %d, want %d", got, want)
	}
	if sym, _, _, err := tab.symbol(1762); err != nil || sym != 'n' {
		t.Errorf("symbol(1762) = %q, %v, want 'n', nil", sym, err)
	}
}

// TestCumulativeFreqAndAdvance exercises the rANS state-transition helpers
// against hand-computed values, independent of stream framing.
func TestCumulativeFreqAndAdvance(t *testing.T) {
	// A state whose low 12 bits select slot 10, with a symbol occupying
	// [4, 14) of the 4096-wide table (cumFreq=4, freq=10).
	r := uint32(0x0100000a)
	if got, want := cumulativeFreq(r), uint32(10); got != want {
		t.Errorf("cumulativeFreq(%#x) = %d, want %d", r, got, want)
	}
	got := advance(r, 4, 10)
	want := uint32(10)*(r>>12) + (r & 0xfff) - 4
	if got != want {
		t.Errorf("advance(%#x, 4, 10) = %d, want %d", r, got, want)
	}
}

// TestRenormThreshold checks the renormalisation boundary documented in
// spec.md section 4.2: a state already at or above 1<<23 must not consume
// any bytes.
func TestRenormThreshold(t *testing.T) {
	br := &byteReader{r: bytes.NewReader(nil)}
	got, err := renorm(br, lowerBound)
	if err != nil {
		t.Fatalf("renorm at threshold: %v", err)
	}
	if got != lowerBound {
		t.Errorf("renorm(lowerBound) = %#x, want %#x (no shift)", got, lowerBound)
	}

	br = &byteReader{r: bytes.NewReader([]byte{0x01})}
	got, err = renorm(br, lowerBound-1)
	if err != nil {
		t.Fatalf("renorm below threshold: %v", err)
	}
	if want := (lowerBound-1)<<8 | 1; got != want {
		t.Errorf("renorm(lowerBound-1) = %#x, want %#x", got, want)
	}
}

// TestDecodeTruncated verifies a truncated payload is reported as
// ErrCorrupt rather than a generic io error leaking out unwrapped.
func TestDecodeTruncated(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte{0x00, 0x01}))
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Decode of truncated header: got %v, want ErrCorrupt", err)
	}
}

// TestDecodeOrder1MissingContext checks that a stream whose decode path
// reaches a context with no declared frequency table fails as corrupt
// instead of decoding through a zeroed table.
func TestDecodeOrder1MissingContext(t *testing.T) {
	// A single context table for context 'a' only; initial lane contexts
	// are 0, which has no table.
	var payload bytes.Buffer
	payload.WriteByte('a')                                // context
	payload.Write([]byte{'x', 0x90, 0x00, 0x00})          // freq table: 'x' = 4096
	payload.WriteByte(0)                                  // context list terminator
	payload.Write(bytes.Repeat([]byte{0, 0, 0x80, 0}, 4)) // states
	out := make([]byte, 4)
	if err := decodeOrder1(bytes.NewReader(payload.Bytes()), out); err == nil {
		t.Fatal("decodeOrder1 with missing context table: got nil error")
	}
}
