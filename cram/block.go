// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"bytes"
	"compress/bzip2"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz/lzma"

	"github.com/biogo/cram/cram/encoding/fqzcomp"
	"github.com/biogo/cram/cram/encoding/itf8"
	"github.com/biogo/cram/cram/encoding/ltf8"
	"github.com/biogo/cram/cram/encoding/rans"
)

// CompressionMethod identifies how a Block's payload is compressed.
//
// See CRAM spec section 8.
type CompressionMethod byte

// Block compression methods.
const (
	MethodNone CompressionMethod = iota
	MethodGzip
	MethodBzip2
	MethodLzma
	MethodRans4x8
	MethodRansNx16
	MethodAdaptiveArithmetic
	MethodFqzcomp
	MethodNameTokeniser
)

// ContentType identifies what a Block's decompressed payload represents.
//
// See CRAM spec section 8.
type ContentType byte

// Block content types.
const (
	ContentFileHeader ContentType = iota
	ContentCompressionHeader
	ContentSliceHeader
	contentReserved
	ContentExternalData
	ContentCoreData
)

// CoreDataContentID is the conventional content ID of the core data block
// within a slice.
const CoreDataContentID = 0

// Block is a single CRAM block: a framed, optionally compressed payload
// tagged with a content type and content ID.
//
// See CRAM spec section 8.
type Block struct {
	Method         CompressionMethod
	ContentType    ContentType
	ContentID      int32
	CompressedSize int32
	RawSize        int32
	Data           []byte
	CRC32          uint32
}

// readBlock parses one framed block from r, validating its CRC32 if
// validateCRC is true.
func readBlock(r io.Reader, validateCRC bool, blockSizeLimit int) (*Block, error) {
	crc := crc32.NewIEEE()
	er := &errorReader{r: io.TeeReader(r, crc)}

	var hdr [2]byte
	io.ReadFull(er, hdr[:])

	b := &Block{
		Method:      CompressionMethod(hdr[0]),
		ContentType: ContentType(hdr[1]),
	}
	b.ContentID = er.itf8()
	b.CompressedSize = er.itf8()
	b.RawSize = er.itf8()
	if er.err != nil {
		return nil, er.err
	}
	if b.Method == MethodNone && b.CompressedSize != b.RawSize {
		return nil, fmt.Errorf("%w: raw method compressed (%d) != raw (%d) size", ErrCorruptBlock, b.CompressedSize, b.RawSize)
	}
	if blockSizeLimit > 0 && int(b.RawSize) > blockSizeLimit {
		return nil, fmt.Errorf("%w: raw size %d exceeds limit %d", ErrCorruptBlock, b.RawSize, blockSizeLimit)
	}

	b.Data = make([]byte, b.CompressedSize)
	if _, err := io.ReadFull(er, b.Data); err != nil {
		return nil, err
	}

	sum := crc.Sum32()
	var sumBuf [4]byte
	if _, err := io.ReadFull(er, sumBuf[:]); err != nil {
		return nil, err
	}
	b.CRC32 = leUint32(sumBuf[:])
	if validateCRC && b.CRC32 != sum {
		return nil, fmt.Errorf("%w: block CRC32 mismatch got:0x%08x want:0x%08x", ErrCorruptBlock, sum, b.CRC32)
	}
	return b, nil
}

// Decompress returns the block's uncompressed payload, decoding it with
// whichever entropy coder or stream decompressor Method names. The result
// always has length RawSize; a mismatch is ErrCorruptBlock.
func (b *Block) Decompress() ([]byte, error) {
	data, err := b.decompress()
	if err != nil {
		return nil, err
	}
	if int32(len(data)) != b.RawSize {
		return nil, fmt.Errorf("%w: decompressed length %d != declared %d", ErrCorruptBlock, len(data), b.RawSize)
	}
	return data, nil
}

func (b *Block) decompress() ([]byte, error) {
	switch b.Method {
	case MethodNone:
		return b.Data, nil
	case MethodGzip:
		gz, err := gzip.NewReader(bytes.NewReader(b.Data))
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %v", ErrCorruptBlock, err)
		}
		defer gz.Close()
		return io.ReadAll(gz)
	case MethodBzip2:
		return io.ReadAll(bzip2.NewReader(bytes.NewReader(b.Data)))
	case MethodLzma:
		lz, err := lzma.NewReader(bytes.NewReader(b.Data))
		if err != nil {
			return nil, fmt.Errorf("%w: lzma: %v", ErrCorruptBlock, err)
		}
		return io.ReadAll(lz)
	case MethodRans4x8:
		out, err := rans.Decode(bytes.NewReader(b.Data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptStream, err)
		}
		return out, nil
	case MethodFqzcomp:
		out, err := fqzcomp.Decode(bytes.NewReader(b.Data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptStream, err)
		}
		return out, nil
	case MethodRansNx16, MethodAdaptiveArithmetic, MethodNameTokeniser:
		return nil, fmt.Errorf("%w: method %d", ErrUnsupportedMethod, b.Method)
	default:
		return nil, fmt.Errorf("%w: unknown method %d", ErrCorruptBlock, b.Method)
	}
}

// errorReader is a sticky-error io.Reader with CRAM varint helpers,
// generalized from the teacher's errorReader in cram.go.
type errorReader struct {
	r   io.Reader
	err error
}

func (r *errorReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	var n int
	n, r.err = r.r.Read(p)
	return n, r.err
}

func (r *errorReader) itf8() int32 {
	var buf [5]byte
	if _, r.err = io.ReadFull(r, buf[:1]); r.err != nil {
		return 0
	}
	v, n, ok := itf8.Decode(buf[:1])
	if ok {
		return v
	}
	if _, r.err = io.ReadFull(r, buf[1:n]); r.err != nil {
		return 0
	}
	v, _, ok = itf8.Decode(buf[:n])
	if !ok {
		r.err = fmt.Errorf("%w: failed to decode itf-8 stream %#v", ErrCorruptStream, buf[:n])
	}
	return v
}

func (r *errorReader) ltf8() int64 {
	var buf [9]byte
	if _, r.err = io.ReadFull(r, buf[:1]); r.err != nil {
		return 0
	}
	v, n, ok := ltf8.Decode(buf[:1])
	if ok {
		return v
	}
	if _, r.err = io.ReadFull(r, buf[1:n]); r.err != nil {
		return 0
	}
	v, _, ok = ltf8.Decode(buf[:n])
	if !ok {
		r.err = fmt.Errorf("%w: failed to decode ltf-8 stream %#v", ErrCorruptStream, buf[:n])
	}
	return v
}

// itf8slice returns the n[ITF-8] encoded numbers at the current reader
// position where n is itself an ITF-8 encoded number.
func (r *errorReader) itf8slice() []int32 {
	n := r.itf8()
	if r.err != nil || n == 0 {
		return nil
	}
	s := make([]int32, n)
	for i := range s {
		s[i] = r.itf8()
		if r.err != nil {
			return s[:i]
		}
	}
	return s
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
