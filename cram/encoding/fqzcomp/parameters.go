// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fqzcomp

import (
	"fmt"
	"io"
)

// paramVersion is the only fqzcomp parameter-block version this decoder
// accepts.
const paramVersion = 5

// globalFlags are the fqzcomp parameter block's stream-wide flags.
//
// See CRAM spec section 4.3.
type globalFlags byte

const (
	flagMultiParam globalFlags = 1 << iota
	flagHaveSTab
	flagDoRev
	flagDoStab
)

func (f globalFlags) has(bit globalFlags) bool { return f&bit != 0 }

// paramFlags are the per-parameter-set flags. Bit 0 is reserved.
type paramFlags byte

const (
	paramDoDedup paramFlags = 2 << iota
	paramDoLen
	paramDoSel
	paramHaveQMap
	paramHavePTab
	paramHaveDTab
	paramHaveQTab
)

func (f paramFlags) has(bit paramFlags) bool { return f&bit != 0 }

// parameter is one fqzcomp parameter set: the context-mixing coefficients
// and optional lookup tables used to compute the 16-bit quality-model
// context for every byte of a record coded under this set.
type parameter struct {
	context uint32 // seed folded into every context value
	flags   paramFlags
	maxSym  byte

	qBits, qShift byte
	qLoc, sLoc    byte
	pLoc, dLoc    byte

	qMap [256]byte
	qTab []byte // length 256; identity unless HAVE_QTAB
	pTab []byte // length 1024, present iff HAVE_PTAB
	dTab []byte // length 256, present iff HAVE_DTAB

	firstLen int // 0 once DO_LEN or the first record's length has been read
	lastLen  int
}

// parameters is the fully parsed fqzcomp parameter block.
type parameters struct {
	gflags globalFlags
	maxSym byte
	maxSel byte
	sTab   [256]byte
	params []parameter
}

// decodeParameters reads the parameter block that precedes the encoded
// payload: a version byte, global flags, the parameter-set count, an
// optional selector table, then one or more per-parameter-set records.
//
// Grounded on noodles-cram's fqz_decode_params (the htscodecs fqzcomp
// wire layout), verified against the literal fqz_decode test vector.
func decodeParameters(r io.Reader) (*parameters, error) {
	br := &byteReader{r: r}

	if vers := br.readByte(); br.err == nil && vers != paramVersion {
		return nil, fmt.Errorf("%w: parameter block version %d, want %d", ErrCorrupt, vers, paramVersion)
	}

	p := &parameters{}
	p.gflags = globalFlags(br.readByte())

	nParam := 1
	if p.gflags.has(flagMultiParam) {
		nParam = int(br.readByte())
	}
	if nParam > 1 {
		p.maxSel = byte(nParam - 1)
	}
	if p.gflags.has(flagHaveSTab) {
		p.maxSel = br.readByte()
		tab, err := readArray(br, 256)
		if err != nil {
			return nil, err
		}
		copy(p.sTab[:], tab)
	}
	if br.err != nil {
		return nil, fmt.Errorf("%w: parameter block: %v", ErrCorrupt, br.err)
	}

	p.params = make([]parameter, nParam)
	for i := range p.params {
		param, err := decodeParameter(br)
		if err != nil {
			return nil, err
		}
		p.params[i] = *param
		if param.maxSym > p.maxSym {
			p.maxSym = param.maxSym
		}
	}
	if br.err != nil {
		return nil, fmt.Errorf("%w: parameter block: %v", ErrCorrupt, br.err)
	}
	return p, nil
}

func decodeParameter(br *byteReader) (*parameter, error) {
	p := &parameter{firstLen: 1}
	p.context = uint32(br.readU16LE())
	p.flags = paramFlags(br.readByte())
	p.maxSym = br.readByte()

	x := br.readByte()
	p.qBits, p.qShift = x>>4, x&0xf
	x = br.readByte()
	p.qLoc, p.sLoc = x>>4, x&0xf
	x = br.readByte()
	p.pLoc, p.dLoc = x>>4, x&0xf

	if p.flags.has(paramHaveQMap) {
		br.readFull(p.qMap[:p.maxSym])
	}

	if p.flags.has(paramHaveQTab) {
		tab, err := readArray(br, 256)
		if err != nil {
			return nil, err
		}
		p.qTab = tab
	} else {
		p.qTab = make([]byte, 256)
		for i := range p.qTab {
			p.qTab[i] = byte(i)
		}
	}
	if p.flags.has(paramHavePTab) {
		tab, err := readArray(br, 1024)
		if err != nil {
			return nil, err
		}
		p.pTab = tab
	}
	if p.flags.has(paramHaveDTab) {
		tab, err := readArray(br, 256)
		if err != nil {
			return nil, err
		}
		p.dTab = tab
	}
	if br.err != nil {
		return nil, fmt.Errorf("%w: parameter set: %v", ErrCorrupt, br.err)
	}
	return p, nil
}
