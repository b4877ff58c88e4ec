// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"bytes"
	"fmt"
	"io"

	"github.com/biogo/cram/cram/encoding/itf8"
)

// executor runs encodings against a slice's core bit stream and its
// external block buffers. One executor is built per slice and reused for
// every record in it.
//
// See CRAM spec section 4.4.
type executor struct {
	core     *bitReader
	external map[int32]*bytes.Reader
	huffman  map[*encoding]*huffmanTable
}

func newExecutor(core io.Reader, external map[int32][]byte) *executor {
	ext := make(map[int32]*bytes.Reader, len(external))
	for id, buf := range external {
		ext[id] = bytes.NewReader(buf)
	}
	return &executor{
		core:     newBitReader(core),
		external: ext,
		huffman:  make(map[*encoding]*huffmanTable),
	}
}

func (x *executor) externalReader(id int32) (*bytes.Reader, error) {
	r, ok := x.external[id]
	if !ok {
		return nil, fmt.Errorf("%w: no external block for content id %d", ErrCorruptStream, id)
	}
	return r, nil
}

func (x *executor) huffmanTableFor(e *encoding) (*huffmanTable, error) {
	if t, ok := x.huffman[e]; ok {
		return t, nil
	}
	t, err := newHuffmanTable(e.alphabet, e.codeLengths)
	if err != nil {
		return nil, err
	}
	x.huffman[e] = t
	return t, nil
}

// readInteger decodes one integer-valued data series item using e.
func (x *executor) readInteger(e *encoding) (int32, error) {
	switch e.kind {
	case encodingNull:
		return 0, nil
	case encodingExternal:
		r, err := x.externalReader(e.contentID)
		if err != nil {
			return 0, err
		}
		return readITF8(r)
	case encodingHuffman:
		t, err := x.huffmanTableFor(e)
		if err != nil {
			return 0, err
		}
		return t.decode(x.core)
	case encodingBeta:
		v, err := x.core.readBits(int(e.nbits))
		if err != nil {
			return 0, err
		}
		return int32(v) - e.offset, nil
	case encodingGamma:
		return x.readGamma(e.offset)
	case encodingSubexponential:
		return x.readSubexponential(e.offset, e.k)
	case encodingGolomb:
		return x.readGolomb(e.offset, e.m)
	case encodingGolombRice:
		return x.readGolombRice(e.offset, e.log2m)
	default:
		return 0, fmt.Errorf("%w: encoding kind %d does not decode a scalar integer", ErrEncodingMismatch, e.kind)
	}
}

// readUnary reads a run of 1-bits terminated by a 0-bit and returns the
// count of 1-bits read.
func (x *executor) readUnary() (int, error) {
	n := 0
	for {
		bit, err := x.core.readBit()
		if err != nil {
			return 0, err
		}
		if bit == 0 {
			return n, nil
		}
		n++
	}
}

// readGamma decodes an Elias gamma code: a unary prefix of n one-bits
// followed by a terminating zero-bit gives the bit-length of the trailing
// value field; the decoded magnitude is (1<<n) plus that trailing field.
func (x *executor) readGamma(offset int32) (int32, error) {
	n, err := x.readUnary()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 1 - offset, nil
	}
	v, err := x.core.readBits(n)
	if err != nil {
		return 0, err
	}
	return int32(uint32(1)<<uint(n)) + int32(v) - offset, nil
}

// readSubexponential decodes a CRAM subexponential code: a unary prefix i
// selects the trailing field width (k when i==0, else i+k-1 bits); the
// decoded magnitude folds in (1<<b)-(1<<k) when i != 0.
func (x *executor) readSubexponential(offset, k int32) (int32, error) {
	i, err := x.readUnary()
	if err != nil {
		return 0, err
	}
	var b int
	if i == 0 {
		b = int(k)
	} else {
		b = i + int(k) - 1
	}
	n, err := x.core.readBits(b)
	if err != nil {
		return 0, err
	}
	v := int32(n)
	if i != 0 {
		v += int32(uint32(1)<<uint(b)) - int32(uint32(1)<<uint(k))
	}
	return v - offset, nil
}

// readGolombRice decodes a Golomb-Rice code with parameter 2^log2m: a
// unary quotient followed by a log2m-bit remainder.
func (x *executor) readGolombRice(offset, log2m int32) (int32, error) {
	q, err := x.readUnary()
	if err != nil {
		return 0, err
	}
	r, err := x.core.readBits(int(log2m))
	if err != nil {
		return 0, err
	}
	return (int32(q)<<uint(log2m) | int32(r)) - offset, nil
}

// readGolomb decodes a general Golomb code with parameter m using a
// unary quotient and a truncated-binary remainder.
func (x *executor) readGolomb(offset, m int32) (int32, error) {
	q, err := x.readUnary()
	if err != nil {
		return 0, err
	}
	b := bitLength(m)
	threshold := int32(1<<uint(b)) - m
	r, err := x.core.readBits(b - 1)
	if err != nil {
		return 0, err
	}
	remainder := int32(r)
	if remainder >= threshold {
		bit, err := x.core.readBit()
		if err != nil {
			return 0, err
		}
		remainder = remainder*2 + int32(bit) - threshold
	}
	return int32(q)*m + remainder - offset, nil
}

func bitLength(m int32) int {
	b := 0
	for (int32(1) << uint(b)) < m {
		b++
	}
	return b
}

// readByteArray decodes an n-byte array using e: External reads n raw
// bytes from an external block; Huffman decodes n symbols one at a time;
// any other integer encoding decodes n scalar values and truncates each to
// a byte.
func (x *executor) readByteArray(e *encoding, n int) ([]byte, error) {
	switch e.kind {
	case encodingExternal:
		r, err := x.externalReader(e.contentID)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		return buf, nil
	case encodingHuffman:
		t, err := x.huffmanTableFor(e)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, n)
		for i := range buf {
			v, err := t.decode(x.core)
			if err != nil {
				return nil, err
			}
			buf[i] = byte(v)
		}
		return buf, nil
	default:
		buf := make([]byte, n)
		for i := range buf {
			v, err := x.readInteger(e)
			if err != nil {
				return nil, err
			}
			buf[i] = byte(v)
		}
		return buf, nil
	}
}

// readByteArrayLen decodes e.lenEncoding to obtain a length, then that
// many bytes via e.valueEncoding.
func (x *executor) readByteArrayLen(e *encoding) ([]byte, error) {
	n, err := x.readInteger(e.lenEncoding)
	if err != nil {
		return nil, err
	}
	return x.readByteArray(e.valueEncoding, int(n))
}

// readByteArrayStop reads bytes from the external block named by e until
// (but not including) e.stopByte, consuming the stop byte.
func (x *executor) readByteArrayStop(e *encoding) ([]byte, error) {
	r, err := x.externalReader(e.contentID)
	if err != nil {
		return nil, err
	}
	var out []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == e.stopByte {
			return out, nil
		}
		out = append(out, b)
	}
}

// readBytes dispatches a byte-array-shaped data series item to whichever
// of the three byte-array encodings e is.
func (x *executor) readBytes(e *encoding) ([]byte, error) {
	switch e.kind {
	case encodingByteArrayLen:
		return x.readByteArrayLen(e)
	case encodingByteArrayStop:
		return x.readByteArrayStop(e)
	case encodingNull:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: encoding kind %d does not decode a byte array", ErrEncodingMismatch, e.kind)
	}
}

func readITF8(r io.ByteReader) (int32, error) {
	var buf [5]byte
	b0, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	buf[0] = b0
	_, n, ok := itf8.Decode(buf[:1])
	if !ok {
		for i := 1; i < n; i++ {
			b, err := r.ReadByte()
			if err != nil {
				return 0, err
			}
			buf[i] = b
		}
	}
	v, _, ok := itf8.Decode(buf[:n])
	if !ok {
		return 0, fmt.Errorf("%w: failed to decode itf-8", ErrCorruptStream)
	}
	return v, nil
}
