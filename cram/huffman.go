// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"fmt"
	"sort"
)

// huffmanTable is a canonical Huffman decode table built from a CRAM
// Huffman encoding's (alphabet, code_lengths) pair.
//
// Grounded on the canonical-code construction used throughout the
// retrieval pack's compression code (see google-wuffs's deflate-style
// length-limited code tables): symbols are ordered by (code length,
// symbol value), and codes are assigned in that order starting from zero,
// incrementing and left-shifting at each length boundary.
type huffmanTable struct {
	// single is the lone symbol of a one-entry alphabet, which CRAM
	// encodes without consuming any bits at all.
	single    int32
	isSingle  bool
	codes     map[uint64]int32 // key: length<<32 | code
	maxLength int
}

func newHuffmanTable(alphabet, codeLengths []int32) (*huffmanTable, error) {
	if len(alphabet) != len(codeLengths) {
		return nil, fmt.Errorf("%w: huffman alphabet/code-length size mismatch", ErrCorruptStream)
	}
	if len(alphabet) == 1 {
		return &huffmanTable{single: alphabet[0], isSingle: true}, nil
	}

	type entry struct {
		symbol int32
		length int32
	}
	entries := make([]entry, len(alphabet))
	for i := range alphabet {
		entries[i] = entry{alphabet[i], codeLengths[i]}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].length != entries[j].length {
			return entries[i].length < entries[j].length
		}
		return entries[i].symbol < entries[j].symbol
	})

	t := &huffmanTable{codes: make(map[uint64]int32, len(entries))}
	var code uint64
	prevLength := int32(0)
	for _, e := range entries {
		if e.length == 0 {
			continue
		}
		code <<= uint(e.length - prevLength)
		key := uint64(e.length)<<32 | code
		t.codes[key] = e.symbol
		if int(e.length) > t.maxLength {
			t.maxLength = int(e.length)
		}
		code++
		prevLength = e.length
	}
	return t, nil
}

// decode reads one symbol from br, bit by bit, against the canonical code
// table.
func (t *huffmanTable) decode(br *bitReader) (int32, error) {
	if t.isSingle {
		return t.single, nil
	}
	var code uint64
	for length := 1; length <= t.maxLength; length++ {
		bit, err := br.readBit()
		if err != nil {
			return 0, err
		}
		code = code<<1 | uint64(bit)
		if sym, ok := t.codes[uint64(length)<<32|code]; ok {
			return sym, nil
		}
	}
	return 0, fmt.Errorf("%w: no huffman code matched", ErrCorruptStream)
}
