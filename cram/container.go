// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// eofContainer is the exact byte sequence of a CRAM EOF sentinel, a
// zero-record container with no landmarks and one 15-byte compression
// header block, whose alignment start field holds the magic value 4542278
// (ITF-8 bytes e0 45 4f 46). Its presence terminates a well-formed stream.
//
// See CRAM spec section 9.
var eofContainer = []byte{
	0x0f, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0xff,
	0x0f, 0xe0, 0x45, 0x4f, 0x46, 0x00, 0x00, 0x00,
	0x00, 0x01, 0x00, 0x05, 0xbd, 0xd9, 0x4f, 0x00,
	0x01, 0x00, 0x06, 0x06, 0x01, 0x00, 0x01, 0x00,
	0x01, 0x00, 0xee, 0x63, 0x01, 0x4b,
}

// containerHeader is a CRAM container header.
//
// See CRAM spec section 7.
type containerHeader struct {
	length    int32
	refID     int32
	start     int32
	span      int32
	numRecord int32
	recCount  int64
	numBase   int64
	numBlock  int32
	landmarks []int32
	crc32     uint32
}

// isEOF reports whether h has the shape of the EOF sentinel header:
// length 15, refID -1 and a single block. The alignment start marker is
// not compared.
func (h *containerHeader) isEOF() bool {
	return h.length == 15 && h.numBlock == 1 && h.refID == -1
}

// HasEOF checks for the presence of the CRAM magic EOF block at the end
// of the stream. The ReaderAt must provide some method for determining
// valid ReadAt offsets.
func HasEOF(r io.ReaderAt) (bool, error) {
	type sizer interface {
		Size() int64
	}
	type stater interface {
		Stat() (os.FileInfo, error)
	}
	type lenSeeker interface {
		io.Seeker
		Len() int
	}
	var size int64
	switch r := r.(type) {
	case sizer:
		size = r.Size()
	case stater:
		fi, err := r.Stat()
		if err != nil {
			return false, err
		}
		size = fi.Size()
	case lenSeeker:
		var err error
		size, err = r.Seek(0, io.SeekCurrent)
		if err != nil {
			return false, err
		}
		size += int64(r.Len())
	default:
		return false, fmt.Errorf("cram: cannot determine stream size")
	}

	buf := make([]byte, len(eofContainer))
	if _, err := r.ReadAt(buf, size-int64(len(buf))); err != nil {
		return false, err
	}
	return bytes.Equal(buf, eofContainer), nil
}

func readContainerHeader(r io.Reader, validateCRC bool) (*containerHeader, error) {
	crc := crc32.NewIEEE()
	er := &errorReader{r: io.TeeReader(r, crc)}

	var lenBuf [4]byte
	n, err := io.ReadFull(er, lenBuf[:])
	if n == 0 && err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}

	h := &containerHeader{length: int32(leUint32(lenBuf[:]))}
	h.refID = er.itf8()
	h.start = er.itf8()
	h.span = er.itf8()
	h.numRecord = er.itf8()
	h.recCount = er.ltf8()
	h.numBase = er.ltf8()
	h.numBlock = er.itf8()
	h.landmarks = er.itf8slice()
	if er.err != nil {
		return nil, er.err
	}

	sum := crc.Sum32()
	var sumBuf [4]byte
	if _, err := io.ReadFull(er, sumBuf[:]); err != nil {
		return nil, err
	}
	h.crc32 = leUint32(sumBuf[:])
	if validateCRC && h.crc32 != sum {
		return nil, fmt.Errorf("%w: container CRC32 mismatch got:0x%08x want:0x%08x", ErrCorruptBlock, sum, h.crc32)
	}
	return h, nil
}

// DataContainer is a single CRAM data container: the compression header
// block that governs every slice nested within it, plus those slices.
//
// See CRAM spec section 7.
type DataContainer struct {
	header            *containerHeader
	CompressionHeader *CompressionHeader
	Slices            []*Slice
}

// ReferenceSequenceID returns the reference sequence ID of the container's
// header-declared reference context: -1 if unmapped, -2 if
// multi-reference.
func (c *DataContainer) ReferenceSequenceID() int32 { return c.header.refID }

// RecordCount returns the number of records in the container as declared
// by its header.
func (c *DataContainer) RecordCount() int { return int(c.header.numRecord) }

// readDataContainer reads one non-EOF data container from r: its header,
// the mandatory compression-header block, then each slice's blocks framed
// by the header's landmarks. A nil container with nil error means the
// stream ended; sentinel reports whether it ended on the magic EOF
// container rather than a bare source EOF.
func readDataContainer(r io.Reader, opts Options) (c *DataContainer, sentinel bool, err error) {
	h, err := readContainerHeader(r, opts.ValidateCRC)
	if err != nil {
		if err == io.EOF {
			return nil, false, nil
		}
		return nil, false, err
	}

	payload := make([]byte, h.length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, false, err
	}

	if h.isEOF() {
		return nil, true, nil
	}

	pr := &byteReader{b: payload}

	chBlock, err := readBlock(pr, opts.ValidateCRC, opts.BlockSizeLimit)
	if err != nil {
		return nil, false, err
	}
	if chBlock.ContentType != ContentCompressionHeader {
		return nil, false, fmt.Errorf("%w: expected compression header block, got content type %d", ErrCorruptBlock, chBlock.ContentType)
	}
	chData, err := chBlock.Decompress()
	if err != nil {
		return nil, false, err
	}
	ch, err := readCompressionHeader(chData)
	if err != nil {
		return nil, false, err
	}

	c = &DataContainer{header: h, CompressionHeader: ch}

	for len(pr.remaining()) > 0 {
		s, err := readSlice(pr, opts)
		if err != nil {
			return nil, false, err
		}
		c.Slices = append(c.Slices, s)
	}

	return c, false, nil
}

// byteReader is a minimal bytes.Reader substitute exposing the remaining
// unread slice, used to know when a container's blocks are exhausted
// without tracking a separate counter.
type byteReader struct {
	b []byte
	i int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.i >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.i:])
	r.i += n
	return n, nil
}

func (r *byteReader) remaining() []byte { return r.b[r.i:] }
