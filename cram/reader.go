// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cram implements a decoder for the CRAM sequence alignment
// format: file/container/slice framing, the rANS and fqzcomp entropy
// codecs, and the per-series record decode loop that reconstructs bases,
// quality scores and read features.
//
// See the CRAM 3.0 format specification.
package cram

import (
	"fmt"
	"io"

	"github.com/biogo/cram/sam"
)

// readFileHeader reads the file header container that follows the file
// definition: a single ContentFileHeader block whose payload is a 4-byte
// little-endian text length followed by the SAM header text.
func readFileHeader(r io.Reader, opts Options) (*sam.Header, error) {
	h, err := readContainerHeader(r, opts.ValidateCRC)
	if err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	payload := make([]byte, h.length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	pr := &byteReader{b: payload}
	blk, err := readBlock(pr, opts.ValidateCRC, opts.BlockSizeLimit)
	if err != nil {
		return nil, err
	}
	if blk.ContentType != ContentFileHeader {
		return nil, fmt.Errorf("%w: expected file header block, got content type %d", ErrCorruptBlock, blk.ContentType)
	}
	data, err := blk.Decompress()
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: truncated file header", ErrCorruptBlock)
	}
	textLen := int(leUint32(data[:4]))
	if 4+textLen > len(data) {
		return nil, fmt.Errorf("%w: file header text length %d exceeds block", ErrCorruptBlock, textLen)
	}
	return sam.NewHeader(data[4:4+textLen], nil)
}

// Reader reads a CRAM stream: the file definition and SAM header are
// parsed eagerly by NewReader; records are pulled lazily through Records.
type Reader struct {
	r    io.Reader
	opts Options
	refs ReferenceRepository

	Definition FileDefinition
	Header     *sam.Header
}

// NewReader returns a Reader for r, having read and validated the file
// definition and file header. refs may be nil; mapped records are then
// decoded against an all-N reference unless opts.RequireReference is set,
// in which case encountering one returns ErrMissingReference.
func NewReader(r io.Reader, refs ReferenceRepository, opts Options) (*Reader, error) {
	rd := &Reader{r: r, opts: opts, refs: refs}
	if err := rd.Definition.readFrom(r); err != nil {
		return nil, err
	}
	h, err := readFileHeader(r, opts)
	if err != nil {
		return nil, err
	}
	rd.Header = h
	return rd, nil
}

// Records returns a pull-based reader over every record in the stream, in
// container/slice order.
func (r *Reader) Records() *RecordReader {
	return &RecordReader{rd: r}
}

// ReadDataContainer reads the next data container from the stream,
// returning a nil container with nil error once the stream ends (on the
// EOF sentinel or a bare source EOF). It shares the Reader's cursor with
// Records; use one or the other.
func (r *Reader) ReadDataContainer() (*DataContainer, error) {
	c, _, err := readDataContainer(r.r, r.opts)
	return c, err
}

// Position returns the current byte offset in the underlying source. It
// fails if the source does not support seeking.
func (r *Reader) Position() (int64, error) {
	s, ok := r.r.(io.Seeker)
	if !ok {
		return 0, fmt.Errorf("cram: byte source does not support seeking")
	}
	return s.Seek(0, io.SeekCurrent)
}

// Seek repositions the underlying source at the absolute byte offset,
// which must be a container boundary. Any RecordReader obtained before
// the call must be discarded.
func (r *Reader) Seek(offset int64) error {
	s, ok := r.r.(io.Seeker)
	if !ok {
		return fmt.Errorf("cram: byte source does not support seeking")
	}
	_, err := s.Seek(offset, io.SeekStart)
	return err
}

// RecordReader iterates over the records of a CRAM stream, pulling and
// decoding containers and slices as needed. The zero value is not useful;
// obtain a RecordReader from Reader.Records.
type RecordReader struct {
	rd *Reader

	container *DataContainer
	sliceIdx  int
	records   []*Record
	recIdx    int

	cur      *Record
	err      error
	done     bool
	sentinel bool
}

// Next advances to the next record, decoding containers and slices lazily.
// It returns false once the stream is exhausted or an error occurs; Err
// distinguishes the two.
func (rr *RecordReader) Next() bool {
	if rr.err != nil || rr.done {
		return false
	}
	for {
		if rr.recIdx < len(rr.records) {
			rr.cur = rr.records[rr.recIdx]
			rr.recIdx++
			return true
		}
		if rr.container != nil && rr.sliceIdx < len(rr.container.Slices) {
			s := rr.container.Slices[rr.sliceIdx]
			rr.sliceIdx++
			recs, err := s.Records(rr.container.CompressionHeader, rr.rd.refs, rr.rd.Header, rr.rd.opts)
			if err != nil {
				rr.err = err
				return false
			}
			rr.records = recs
			rr.recIdx = 0
			continue
		}
		c, sentinel, err := readDataContainer(rr.rd.r, rr.rd.opts)
		if err != nil {
			rr.err = err
			return false
		}
		if c == nil {
			rr.done = true
			rr.sentinel = sentinel
			return false
		}
		rr.container = c
		rr.sliceIdx = 0
		rr.records = nil
	}
}

// Record returns the record most recently made current by Next.
func (rr *RecordReader) Record() *Record { return rr.cur }

// Err returns the first error encountered by Next, if any.
func (rr *RecordReader) Err() error { return rr.err }

// MissingEOF reports whether the stream was exhausted without the magic
// EOF container. Per the CRAM specification this is a warning for the
// caller to surface, not an error; it is meaningful only once Next has
// returned false with a nil Err.
func (rr *RecordReader) MissingEOF() bool { return rr.done && !rr.sentinel }
