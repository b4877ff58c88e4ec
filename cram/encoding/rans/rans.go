// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rans implements the CRAM 4x8 rANS entropy codec, orders 0 and 1.
//
// See CRAM format specification section 4.2.
package rans

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/biogo/cram/cram/encoding/itf8"
)

// ErrCorrupt is returned when the rANS stream violates one of the codec's
// invariants: a truncated payload, a frequency table exceeding the 4096
// cumulative-frequency range, or a cumulative-frequency slot with no
// covering symbol.
var ErrCorrupt = errors.New("rans: corrupt stream")

// totalFreq is the fixed cumulative-frequency range of a CRAM rANS table;
// an order-0 table (and each of the order-1 sub-tables) must fit within
// it. Encoders round frequencies down when normalising, so a table may sum
// slightly below this; it must never exceed it.
const totalFreq = 1 << 12 // 4096

const lowerBound = uint32(1) << 23

// numStates is the number of interleaved rANS lanes ("4x8").
const numStates = 4

// Decode reads one framed rANS stream from r: an order byte, a
// little-endian compressed length, a little-endian uncompressed length,
// then the payload, and returns the decoded bytes.
func Decode(r io.Reader) ([]byte, error) {
	var hdr [9]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	order := hdr[0]
	// hdr[1:5] is the compressed length, not needed once the payload is
	// framed by the enclosing Block; only the declared output length
	// drives allocation.
	dataLen := binary.LittleEndian.Uint32(hdr[5:9])

	buf := make([]byte, dataLen)
	switch order {
	case 0:
		if err := decodeOrder0(r, buf); err != nil {
			return nil, err
		}
	case 1:
		if err := decodeOrder1(r, buf); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown order %d", ErrCorrupt, order)
	}
	return buf, nil
}

// freqTable is the decoded (cumulative, frequency) pair for one order-0
// context, plus a 4096-entry reverse lookup from cumulative-frequency slot
// to symbol, used to decode a symbol in O(1).
type freqTable struct {
	cumFreq [256]uint32
	freq    [256]uint32
	lookup  [totalFreq]byte
}

// readFreqTable parses one frequency table following the CRAM symbol
// run-length scheme: (symbol, ITF-8 frequency) pairs in ascending symbol
// order, where a symbol exactly one greater than its predecessor
// introduces a run byte counting further consecutive symbols, and symbol 0
// terminates the list.
func readFreqTable(br *byteReader) (*freqTable, error) {
	t := &freqTable{}
	sym := br.readByte()
	lastSym := sym
	var rle byte
	for br.err == nil {
		f := br.readITF8()
		t.freq[sym] = uint32(f)
		if rle > 0 {
			rle--
			sym++
		} else {
			sym = br.readByte()
			if sym == lastSym+1 {
				rle = br.readByte()
			}
		}
		lastSym = sym
		if sym == 0 {
			break
		}
	}
	if br.err != nil {
		return nil, fmt.Errorf("%w: frequency table: %v", ErrCorrupt, br.err)
	}

	var sum uint32
	for s := 0; s < 256; s++ {
		t.cumFreq[s] = sum
		sum += t.freq[s]
		if sum > totalFreq {
			return nil, fmt.Errorf("%w: frequency table sums to more than %d", ErrCorrupt, totalFreq)
		}
		for slot := t.cumFreq[s]; slot < t.cumFreq[s]+t.freq[s]; slot++ {
			t.lookup[slot] = byte(s)
		}
	}
	return t, nil
}

// symbol returns the decoded symbol and its (cumFreq, freq) pair for the
// cumulative-frequency slot c. A slot no symbol covers is ErrCorrupt.
func (t *freqTable) symbol(c uint32) (sym byte, cumFreq, freq uint32, err error) {
	sym = t.lookup[c&(totalFreq-1)]
	if t.freq[sym] == 0 {
		return 0, 0, 0, fmt.Errorf("%w: cumulative-frequency slot %d not covered", ErrCorrupt, c)
	}
	return sym, t.cumFreq[sym], t.freq[sym], nil
}

// decodeOrder0 decodes a single shared frequency table against four
// interleaved rANS lanes, emitting one byte per lane in round-robin order.
func decodeOrder0(r io.Reader, out []byte) error {
	br := &byteReader{r: r}
	t, err := readFreqTable(br)
	if err != nil {
		return err
	}

	var states [numStates]uint32
	for i := range states {
		states[i] = br.readU32LE()
	}
	if br.err != nil {
		return fmt.Errorf("%w: initial states: %v", ErrCorrupt, br.err)
	}

	for i := range out {
		lane := i % numStates
		s := states[lane]
		sym, cumFreq, freq, err := t.symbol(cumulativeFreq(s))
		if err != nil {
			return err
		}
		out[i] = sym
		s = advance(s, cumFreq, freq)
		s, err = renorm(br, s)
		if err != nil {
			return err
		}
		states[lane] = s
	}
	return nil
}

// decodeOrder1 decodes a sparse 256-way table of frequency tables indexed
// by previous byte, against four rANS lanes that each decode one quarter
// of the output (lane j fills out[j*q..(j+1)*q] for q = len/4, with lane 3
// continuing through the remainder). Each lane's context is the byte it
// last emitted, starting from 0.
//
// The context dimension reuses the same symbol run-length scheme as the
// tables themselves: contexts appear in ascending order, a context one
// greater than its predecessor introduces a run byte, and context 0
// terminates the list. Contexts never named have no table; reaching one
// during decode is ErrCorrupt.
func decodeOrder1(r io.Reader, out []byte) error {
	br := &byteReader{r: r}

	var tables [256]*freqTable
	ctx := br.readByte()
	lastCtx := ctx
	var rle byte
	for br.err == nil {
		t, err := readFreqTable(br)
		if err != nil {
			return err
		}
		tables[ctx] = t
		if rle > 0 {
			rle--
			ctx++
		} else {
			ctx = br.readByte()
			if ctx == lastCtx+1 {
				rle = br.readByte()
			}
		}
		lastCtx = ctx
		if ctx == 0 {
			break
		}
	}
	if br.err != nil {
		return fmt.Errorf("%w: context tables: %v", ErrCorrupt, br.err)
	}

	var states [numStates]uint32
	for i := range states {
		states[i] = br.readU32LE()
	}
	if br.err != nil {
		return fmt.Errorf("%w: initial states: %v", ErrCorrupt, br.err)
	}
	var context [numStates]byte

	step := func(lane, pos int) error {
		t := tables[context[lane]]
		if t == nil {
			return fmt.Errorf("%w: no frequency table for context %#02x", ErrCorrupt, context[lane])
		}
		s := states[lane]
		sym, cumFreq, freq, err := t.symbol(cumulativeFreq(s))
		if err != nil {
			return err
		}
		out[pos] = sym
		context[lane] = sym
		s = advance(s, cumFreq, freq)
		s, err = renorm(br, s)
		if err != nil {
			return err
		}
		states[lane] = s
		return nil
	}

	quarter := len(out) / numStates
	for i := 0; i < quarter; i++ {
		for j := 0; j < numStates; j++ {
			if err := step(j, i+j*quarter); err != nil {
				return err
			}
		}
	}
	// Lane 3 decodes the len%4 tail bytes beyond its quarter.
	for i := numStates * quarter; i < len(out); i++ {
		if err := step(numStates-1, i); err != nil {
			return err
		}
	}
	return nil
}

// cumulativeFreq extracts the low 12 bits of a rANS state, the slot used
// to look up the next symbol.
func cumulativeFreq(r uint32) uint32 { return r & (totalFreq - 1) }

// advance steps a rANS state past a decoded symbol with the given
// cumulative frequency and frequency.
func advance(r, cumFreq, freq uint32) uint32 {
	return freq*(r>>12) + (r & (totalFreq - 1)) - cumFreq
}

// renorm shifts bytes from br into r until it is back above lowerBound.
func renorm(br *byteReader, r uint32) (uint32, error) {
	for r < lowerBound {
		b := br.readByte()
		if br.err != nil {
			return 0, fmt.Errorf("%w: renormalisation: %v", ErrCorrupt, br.err)
		}
		r = r<<8 | uint32(b)
	}
	return r, nil
}

// byteReader is a tiny sticky-error byte/ITF-8/u32LE reader, the same
// idiom cram's top-level errorReader uses for the container/block framing.
type byteReader struct {
	r   io.Reader
	err error
}

func (r *byteReader) readByte() byte {
	if r.err != nil {
		return 0
	}
	var b [1]byte
	_, r.err = io.ReadFull(r.r, b[:])
	return b[0]
}

func (r *byteReader) readU32LE() uint32 {
	if r.err != nil {
		return 0
	}
	var b [4]byte
	if _, r.err = io.ReadFull(r.r, b[:]); r.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b[:])
}

// readITF8 reads one CRAM ITF-8 varint frequency value. rANS frequency
// tables use the same variable-length integer as the rest of CRAM; the
// first byte alone declares the encoded width (cram/encoding/itf8.Decode's
// contract), so a short first decode attempt tells us how many more bytes
// to pull.
func (r *byteReader) readITF8() int32 {
	var buf [5]byte
	buf[0] = r.readByte()
	if r.err != nil {
		return 0
	}
	v, n, ok := itf8.Decode(buf[:1])
	if ok {
		return v
	}
	for i := 1; i < n; i++ {
		buf[i] = r.readByte()
		if r.err != nil {
			return 0
		}
	}
	v, _, ok = itf8.Decode(buf[:n])
	if !ok {
		r.err = fmt.Errorf("%w: failed to decode itf-8", ErrCorrupt)
	}
	return v
}
