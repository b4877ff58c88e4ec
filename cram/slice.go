// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/biogo/cram/sam"
)

// ReferenceRepository resolves a named reference sequence for record base
// reconstruction. refseq.FastaRepository is the only concrete
// implementation shipped with this module; see its package doc for how it
// adapts fai.File.
//
// See CRAM spec section 6 ("External interfaces").
type ReferenceRepository interface {
	Get(name string) (ReferenceSequence, error)
}

// ReferenceSequence is a single named reference sequence, addressed by
// 1-based inclusive coordinates.
type ReferenceSequence interface {
	Len() int
	Region(start, end int) ([]byte, error)
}

// sliceHeader is a CRAM slice header: the reference context and block
// indexing information that precedes a slice's core and external blocks.
//
// See CRAM spec section 3 ("Slice").
type sliceHeader struct {
	refID           int32
	alignmentStart  int32
	alignmentSpan   int32
	numRecords      int32
	recordCounter   int64
	numBlocks       int32
	blockContentIDs []int32
	embeddedRefID   int32
	refMD5          [16]byte
}

func readSliceHeader(data []byte) (*sliceHeader, error) {
	br := &byteReader{b: data}
	er := &errorReader{r: br}

	h := &sliceHeader{}
	h.refID = er.itf8()
	h.alignmentStart = er.itf8()
	h.alignmentSpan = er.itf8()
	h.numRecords = er.itf8()
	h.recordCounter = er.ltf8()
	h.numBlocks = er.itf8()
	h.blockContentIDs = er.itf8slice()
	h.embeddedRefID = er.itf8()
	if _, err := readFullErrorReader(er, h.refMD5[:]); err != nil {
		return nil, err
	}
	if er.err != nil {
		return nil, er.err
	}
	return h, nil
}

// Slice is a single CRAM slice: the records spanned by one reference
// context, stored as a core bit stream block plus zero or more external
// blocks keyed by content ID.
//
// See CRAM spec section 3 ("Slice") and section 4.5.
type Slice struct {
	header   *sliceHeader
	core     []byte
	external map[int32][]byte
}

// readSlice parses one slice's header block followed by its numBlocks core
// and external data blocks from pr.
func readSlice(pr *byteReader, opts Options) (*Slice, error) {
	hdrBlock, err := readBlock(pr, opts.ValidateCRC, opts.BlockSizeLimit)
	if err != nil {
		return nil, err
	}
	if hdrBlock.ContentType != ContentSliceHeader {
		return nil, fmt.Errorf("%w: expected slice header block, got content type %d", ErrCorruptBlock, hdrBlock.ContentType)
	}
	hdrData, err := hdrBlock.Decompress()
	if err != nil {
		return nil, err
	}
	sh, err := readSliceHeader(hdrData)
	if err != nil {
		return nil, err
	}

	s := &Slice{header: sh, external: make(map[int32][]byte, sh.numBlocks)}
	for i := int32(0); i < sh.numBlocks; i++ {
		b, err := readBlock(pr, opts.ValidateCRC, opts.BlockSizeLimit)
		if err != nil {
			return nil, err
		}
		payload, err := b.Decompress()
		if err != nil {
			return nil, err
		}
		if b.ContentType == ContentCoreData {
			s.core = payload
			continue
		}
		s.external[b.ContentID] = payload
	}
	return s, nil
}

// ReferenceSequenceContext returns the slice header's declared reference
// context: None (refID -1), Multi (refID -2), or a Single reference span.
//
// CRAM reserves refID -1 for "unmapped, no reference" and -2 for "multiple
// references"; both collapse the richer referenceSequenceContext states
// this module shares with the container layer.
func (s *Slice) ReferenceSequenceContext() referenceSequenceContext {
	h := s.header
	switch h.refID {
	case -1:
		return noneReferenceSequenceContext
	case -2:
		return referenceSequenceContext{kind: refContextMulti}
	default:
		return someReferenceSequenceContext(int(h.refID), int(h.alignmentStart), int(h.alignmentStart)+int(h.alignmentSpan)-1)
	}
}

// NumRecords returns the number of records the slice header declares.
func (s *Slice) NumRecords() int { return int(s.header.numRecords) }

// Records decodes every record in the slice against the container's
// compression header, resolving mapped bases against refs (which may be
// nil if opts.RequireReference is false, in which case mapped records are
// reconstructed against an all-N reference).
func (s *Slice) Records(ch *CompressionHeader, refs ReferenceRepository, header *sam.Header, opts Options) ([]*Record, error) {
	ext := make(map[int32][]byte, len(s.external))
	for id, buf := range s.external {
		ext[id] = buf
	}
	x := newExecutor(bytes.NewReader(s.core), ext)

	sliceCtx := s.ReferenceSequenceContext()
	var refSeq []byte
	var refStart int
	if sliceCtx.kind == refContextSingle {
		refStart = sliceCtx.start
		if refs != nil {
			if name, ok := referenceName(header, sliceCtx.id); ok {
				seq, err := refs.Get(name)
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrMissingReference, err)
				}
				b, err := seq.Region(sliceCtx.start, sliceCtx.end)
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrInvalidReferenceSpan, err)
				}
				refSeq = b
				if s.header.refMD5 != ([16]byte{}) {
					if sum := normalizedMD5(refSeq); sum != s.header.refMD5 {
						return nil, fmt.Errorf("%w: reference MD5 mismatch got:%x want:%x", ErrMissingReference, sum, s.header.refMD5)
					}
				}
			}
		}
		if refSeq == nil {
			if opts.RequireReference {
				return nil, ErrMissingReference
			}
			refSeq = bytes.Repeat([]byte{'N'}, sliceCtx.alignmentSpan())
		}
	}

	prevAP := int32(sliceCtx.start)
	records := make([]*Record, s.NumRecords())
	for i := range records {
		rec, err := decodeRecord(x, ch, sliceCtx, refSeq, refStart, &prevAP)
		if err != nil {
			return nil, fmt.Errorf("cram: record %d: %w", i, err)
		}
		if !ch.preservation.preserveReadNames {
			rec.ReadName = strconv.FormatInt(s.header.recordCounter+int64(i), 10)
		}
		records[i] = rec
	}

	// Stitch intra-slice mate linkage: a record flagged as having its mate
	// downstream links to the record NextFragmentDistance+1 further on;
	// detached records already carry explicit mate coordinates.
	for i, rec := range records {
		if !rec.CRAMFlags.has(cramFlagHasMateDownstream) {
			continue
		}
		j := i + rec.NextFragmentDistance + 1
		if j <= i || j >= len(records) {
			return nil, fmt.Errorf("cram: record %d: mate distance %d outside slice", i, rec.NextFragmentDistance)
		}
		mate := records[j]
		rec.MateReferenceID = mate.ReferenceID
		rec.MateAlignmentStart = mate.AlignmentStart
		mate.MateReferenceID = rec.ReferenceID
		mate.MateAlignmentStart = rec.AlignmentStart
	}
	return records, nil
}

func referenceName(header *sam.Header, id int) (string, bool) {
	if header == nil || id < 0 {
		return "", false
	}
	refs := header.Refs()
	if id >= len(refs) {
		return "", false
	}
	return refs[id].Name(), true
}
