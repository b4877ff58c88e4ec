// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fqzcomp

import "io"

// rangeCoder is the byte-wise carryless range decoder fqzcomp's adaptive
// byte models sit on top of: code tracks the encoder's residual, range
// shrinks per symbol and refills a byte at a time once it drops below the
// 2^24 renormalisation bound.
//
// Grounded on noodles-cram's aac::RangeCoder (the htscodecs range coder),
// verified against the literal fqz_decode test vector.
type rangeCoder struct {
	rng, code uint32
}

const rangeTop = uint32(1) << 24

// init primes the coder. Five bytes are shifted into the 32-bit code, so
// the first (always zero on encode) falls off the top.
func (rc *rangeCoder) init(r io.ByteReader) error {
	rc.rng = 0xffffffff
	rc.code = 0
	for i := 0; i < 5; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		rc.code = rc.code<<8 | uint32(b)
	}
	return nil
}

// getFreq narrows rng to one cumulative-frequency unit and returns which
// slot the current code value falls in, out of totFreq.
func (rc *rangeCoder) getFreq(totFreq uint32) uint32 {
	rc.rng /= totFreq
	return rc.code / rc.rng
}

// decode commits the decision for the symbol occupying [cumFreq,
// cumFreq+freq) and renormalises.
func (rc *rangeCoder) decode(r io.ByteReader, cumFreq, freq uint32) error {
	rc.code -= cumFreq * rc.rng
	rc.rng *= freq
	for rc.rng < rangeTop {
		rc.rng <<= 8
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		rc.code = rc.code<<8 | uint32(b)
	}
	return nil
}

// model is an adaptive byte model over the alphabet [0, maxSym], used for
// one fqzcomp context (quality, length byte, dup flag, reverse flag, or
// selector). Entries keep an approximate most-frequent-first order via an
// adjacent swap on update, so the linear cumulative scan stays short for
// skewed distributions.
//
// Grounded on noodles-cram's aac::Model (the htscodecs simple model).
type model struct {
	syms  []byte
	freq  []uint32
	total uint32
}

const modelStep = 16
const modelMax = (1 << 16) - 17

func newModel(maxSym byte) *model {
	n := int(maxSym) + 1
	m := &model{
		syms: make([]byte, n),
		freq: make([]uint32, n),
	}
	for i := range m.syms {
		m.syms[i] = byte(i)
		m.freq[i] = 1
	}
	m.total = uint32(n)
	return m
}

// decode reads one symbol from r under this model's current adaptive
// distribution and updates the distribution.
func (m *model) decode(r io.ByteReader, rc *rangeCoder) (byte, error) {
	freqVal := rc.getFreq(m.total)
	var cum uint32
	x := 0
	for x < len(m.freq)-1 && cum+m.freq[x] <= freqVal {
		cum += m.freq[x]
		x++
	}
	if err := rc.decode(r, cum, m.freq[x]); err != nil {
		return 0, err
	}

	m.bump(x)

	sym := m.syms[x]
	if x > 0 && m.freq[x] > m.freq[x-1] {
		m.freq[x], m.freq[x-1] = m.freq[x-1], m.freq[x]
		m.syms[x], m.syms[x-1] = m.syms[x-1], m.syms[x]
	}
	return sym, nil
}

// bump adds one symbol observation at table index x, halving the whole
// table if the running total would outgrow its 16-bit budget.
func (m *model) bump(x int) {
	m.freq[x] += modelStep
	m.total += modelStep
	if m.total > modelMax {
		m.total = 0
		for i := range m.freq {
			m.freq[i] -= m.freq[i] >> 1
			m.total += m.freq[i]
		}
	}
}
