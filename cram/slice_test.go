// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"testing"
)

// TestSliceReferenceSequenceContext checks the refID -1/-2/else mapping onto
// None/Multi/Single that Slice.ReferenceSequenceContext performs.
func TestSliceReferenceSequenceContext(t *testing.T) {
	cases := []struct {
		name string
		h    *sliceHeader
		want referenceSequenceContext
	}{
		{"none", &sliceHeader{refID: -1}, noneReferenceSequenceContext},
		{"multi", &sliceHeader{refID: -2}, referenceSequenceContext{kind: refContextMulti}},
		{"single", &sliceHeader{refID: 2, alignmentStart: 100, alignmentSpan: 50}, someReferenceSequenceContext(2, 100, 149)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := &Slice{header: c.h}
			got := s.ReferenceSequenceContext()
			if got != c.want {
				t.Errorf("ReferenceSequenceContext() = %+v, want %+v", got, c.want)
			}
		})
	}
}

// TestReadSliceHeader round-trips a hand-assembled slice header block
// through readSliceHeader, checking every field survives the ITF-8/LTF-8
// framing readSlice relies on.
func TestReadSliceHeader(t *testing.T) {
	data := buildSliceHeader(3, 2)
	h, err := readSliceHeader(data)
	if err != nil {
		t.Fatalf("readSliceHeader: %v", err)
	}
	if h.refID != -1 {
		t.Errorf("refID = %d, want -1", h.refID)
	}
	if h.numRecords != 3 {
		t.Errorf("numRecords = %d, want 3", h.numRecords)
	}
	if h.numBlocks != 2 {
		t.Errorf("numBlocks = %d, want 2", h.numBlocks)
	}
	if h.embeddedRefID != -1 {
		t.Errorf("embeddedRefID = %d, want -1", h.embeddedRefID)
	}
}

// TestReadSliceBlocks builds a slice header plus one core and one external
// block directly (bypassing the surrounding container) and checks readSlice
// routes each by content type: the core block payload lands in Slice.core,
// the external block lands in Slice.external keyed by its content ID.
func TestReadSliceBlocks(t *testing.T) {
	headerBlock := buildBlock(ContentSliceHeader, 0, buildSliceHeader(1, 2))
	coreBlock := buildBlock(ContentCoreData, CoreDataContentID, []byte{0xaa})
	externalBlock := buildBlock(ContentExternalData, 7, []byte{0xbb, 0xcc})

	var payload []byte
	payload = append(payload, headerBlock...)
	payload = append(payload, coreBlock...)
	payload = append(payload, externalBlock...)

	pr := &byteReader{b: payload}
	s, err := readSlice(pr, DefaultOptions())
	if err != nil {
		t.Fatalf("readSlice: %v", err)
	}
	if s.NumRecords() != 1 {
		t.Errorf("NumRecords() = %d, want 1", s.NumRecords())
	}
	if string(s.core) != "\xaa" {
		t.Errorf("core = %x, want aa", s.core)
	}
	if got := s.external[7]; string(got) != "\xbb\xcc" {
		t.Errorf("external[7] = %x, want bbcc", got)
	}
	if len(pr.remaining()) != 0 {
		t.Errorf("remaining() = %d bytes, want 0", len(pr.remaining()))
	}
}

// TestSliceRecordsUnmapped decodes a single unmapped record directly through
// Slice.Records, independent of the container/file-level framing exercised
// by TestReadSingleUnmappedRecord.
func TestSliceRecordsUnmapped(t *testing.T) {
	ch, err := readCompressionHeader(buildCompressionHeader())
	if err != nil {
		t.Fatalf("readCompressionHeader: %v", err)
	}

	s := &Slice{
		header:   &sliceHeader{refID: -1, numRecords: 1},
		external: map[int32][]byte{0: {4, 0}}, // BF=Unmapped(4), RL=0
	}

	recs, err := s.Records(ch, nil, nil, DefaultOptions())
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("len(Records()) = %d, want 1", len(recs))
	}
	if !recs[0].IsUnmapped() {
		t.Errorf("IsUnmapped() = false, want true")
	}
	if recs[0].ReferenceID != -1 {
		t.Errorf("ReferenceID = %d, want -1", recs[0].ReferenceID)
	}
	if recs[0].ReadLength != 0 {
		t.Errorf("ReadLength = %d, want 0", recs[0].ReadLength)
	}
}
