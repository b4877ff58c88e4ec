// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"fmt"
	"io"
)

// encodingKind is the tagged-variant discriminant for an Encoding
// descriptor.
//
// See CRAM spec section 4.4.
type encodingKind int32

const (
	encodingNull encodingKind = iota
	encodingExternal
	encodingGolomb
	encodingHuffman
	encodingByteArrayLen
	encodingByteArrayStop
	encodingBeta
	encodingSubexponential
	encodingGolombRice
	encodingGamma
)

// encoding is a parsed CRAM encoding descriptor: a tagged union describing
// how one data series or tag value is laid out, either in the core bit
// stream or in a named external block.
//
// See CRAM spec section 3 ("Encoding").
type encoding struct {
	kind encodingKind

	// External.
	contentID int32

	// Golomb, GolombRice, Subexponential, Beta, Gamma share offset.
	offset int32
	m      int32 // Golomb
	log2m  int32 // GolombRice
	k      int32 // Subexponential
	nbits  int32 // Beta

	// Huffman.
	alphabet    []int32
	codeLengths []int32

	// ByteArrayLen.
	lenEncoding   *encoding
	valueEncoding *encoding

	// ByteArrayStop.
	stopByte byte
}

// readEncoding parses one encoding descriptor: an ITF-8 codec id, an ITF-8
// argument-block length, then that many argument bytes (whose layout
// depends on the codec id; ByteArrayLen nests two further encodings).
func readEncoding(r io.Reader) (*encoding, error) {
	er := &errorReader{r: r}
	kind := encodingKind(er.itf8())
	argLen := er.itf8()
	if er.err != nil {
		return nil, er.err
	}
	args := make([]byte, argLen)
	if _, err := io.ReadFull(er, args); err != nil {
		return nil, err
	}

	ar := &errorReader{r: &byteReader{b: args}}
	e := &encoding{kind: kind}
	switch kind {
	case encodingNull:
		// No arguments.
	case encodingExternal:
		e.contentID = ar.itf8()
	case encodingGolomb:
		e.offset = ar.itf8()
		e.m = ar.itf8()
	case encodingHuffman:
		n := ar.itf8()
		e.alphabet = make([]int32, n)
		for i := range e.alphabet {
			e.alphabet[i] = ar.itf8()
		}
		m := ar.itf8()
		e.codeLengths = make([]int32, m)
		for i := range e.codeLengths {
			e.codeLengths[i] = ar.itf8()
		}
	case encodingByteArrayLen:
		lenEnc, err := readEncoding(ar)
		if err != nil {
			return nil, err
		}
		valEnc, err := readEncoding(ar)
		if err != nil {
			return nil, err
		}
		e.lenEncoding, e.valueEncoding = lenEnc, valEnc
	case encodingByteArrayStop:
		var b [1]byte
		if _, err := io.ReadFull(ar, b[:]); err != nil {
			return nil, err
		}
		e.stopByte = b[0]
		e.contentID = ar.itf8()
	case encodingBeta:
		e.offset = ar.itf8()
		e.nbits = ar.itf8()
	case encodingSubexponential:
		e.offset = ar.itf8()
		e.k = ar.itf8()
	case encodingGolombRice:
		e.offset = ar.itf8()
		e.log2m = ar.itf8()
	case encodingGamma:
		e.offset = ar.itf8()
	default:
		return nil, fmt.Errorf("%w: unknown encoding kind %d", ErrCorruptStream, kind)
	}
	if ar.err != nil {
		return nil, ar.err
	}
	return e, nil
}
