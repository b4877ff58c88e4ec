// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"io"

	"github.com/icza/bitio"
)

// bitReader is the MSB-first bit stream the encoding executor reads the
// core data block through. CRAM's core bit stream packs integer and
// Huffman codes most-significant-bit first within each byte, the same
// convention icza/bitio.Reader uses for ReadBits.
type bitReader struct {
	r *bitio.Reader
}

// newBitReader wraps r as a CRAM core bit stream.
func newBitReader(r io.Reader) *bitReader {
	return &bitReader{r: bitio.NewReader(r)}
}

// readBits reads the next n bits (0 <= n <= 32) and returns them as the low
// n bits of the result.
func (b *bitReader) readBits(n int) (uint32, error) {
	if n == 0 {
		return 0, nil
	}
	v, err := b.r.ReadBits(uint8(n))
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// readBit reads a single bit.
func (b *bitReader) readBit() (uint32, error) {
	bit, err := b.r.ReadBool()
	if err != nil {
		return 0, err
	}
	if bit {
		return 1, nil
	}
	return 0, nil
}

// readByte reads a whole, byte-aligned-or-not, byte.
func (b *bitReader) readByte() (byte, error) {
	return b.r.ReadByte()
}
