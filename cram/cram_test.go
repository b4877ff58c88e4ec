// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"bytes"
	"hash/crc32"
	"testing"

	"github.com/kortschak/utter"

	"github.com/biogo/cram/cram/encoding/itf8"
	"github.com/biogo/cram/cram/encoding/ltf8"
	"github.com/biogo/cram/sam"
)

// The helpers below hand-assemble a minimal, self-consistent CRAM byte
// stream: a file definition, a file-header container carrying one SAM
// @PG line, and a single data container holding one slice with exactly
// one unmapped record. Every data series but BF and RL is left
// unencoded, exercising this decoder's documented behaviour of treating
// an absent data-series encoding as "value not present" rather than an
// error (see readSeriesInt/readSeriesBytes).

func appendITF8(b []byte, v int32) []byte {
	var buf [5]byte
	n := itf8.Encode(buf[:], v)
	return append(b, buf[:n]...)
}

func appendLTF8(b []byte, v int64) []byte {
	var buf [9]byte
	n := ltf8.Encode(buf[:], v)
	return append(b, buf[:n]...)
}

// buildBlock frames data as an uncompressed CRAM block.
func buildBlock(contentType ContentType, contentID int32, data []byte) []byte {
	b := []byte{byte(MethodNone), byte(contentType)}
	b = appendITF8(b, contentID)
	b = appendITF8(b, int32(len(data)))
	b = appendITF8(b, int32(len(data)))
	b = append(b, data...)
	sum := crc32.ChecksumIEEE(b)
	var sumBuf [4]byte
	sumBuf[0] = byte(sum)
	sumBuf[1] = byte(sum >> 8)
	sumBuf[2] = byte(sum >> 16)
	sumBuf[3] = byte(sum >> 24)
	return append(b, sumBuf[:]...)
}

// buildContainer frames payload (already-concatenated blocks) behind a
// container header declaring the given reference context and record
// count. The header's length field is a raw 4-byte little-endian
// integer, unlike every other container/slice/block header field, which
// is ITF-8 or LTF-8 encoded.
func buildContainer(refID, start, span, numRecord int32, numBlock int32, payload []byte) []byte {
	length := uint32(len(payload))
	fields := []byte{byte(length), byte(length >> 8), byte(length >> 16), byte(length >> 24)}
	fields = appendITF8(fields, refID)
	fields = appendITF8(fields, start)
	fields = appendITF8(fields, span)
	fields = appendITF8(fields, numRecord)
	fields = appendLTF8(fields, 0) // record counter
	fields = appendLTF8(fields, 0) // base count
	fields = appendITF8(fields, numBlock)
	fields = appendITF8(fields, 0) // zero landmarks
	sum := crc32.ChecksumIEEE(fields)
	var sumBuf [4]byte
	sumBuf[0] = byte(sum)
	sumBuf[1] = byte(sum >> 8)
	sumBuf[2] = byte(sum >> 16)
	sumBuf[3] = byte(sum >> 24)
	out := append(fields, sumBuf[:]...)
	return append(out, payload...)
}

// buildCompressionHeader assembles a compression header whose only
// encoded data series are BF and RL, both External against content ID 0,
// with empty preservation and tag-encoding maps.
func buildCompressionHeader() []byte {
	extEncoding := func(contentID int32) []byte {
		args := appendITF8(nil, contentID)
		b := appendITF8(nil, int32(encodingExternal))
		b = appendITF8(b, int32(len(args)))
		return append(b, args...)
	}

	dsBody := appendITF8(nil, 2) // two data series
	dsBody = append(dsBody, 'B', 'F')
	dsBody = append(dsBody, extEncoding(0)...)
	dsBody = append(dsBody, 'R', 'L')
	dsBody = append(dsBody, extEncoding(0)...)
	dsMap := appendITF8(nil, int32(len(dsBody)))
	dsMap = append(dsMap, dsBody...)

	pmBody := appendITF8(nil, 0) // empty preservation map
	pmMap := appendITF8(nil, int32(len(pmBody)))
	pmMap = append(pmMap, pmBody...)

	tagBody := appendITF8(nil, 0) // no tags
	tagMap := appendITF8(nil, int32(len(tagBody)))
	tagMap = append(tagMap, tagBody...)

	var out []byte
	out = append(out, pmMap...)
	out = append(out, dsMap...)
	out = append(out, tagMap...)
	return out
}

// buildSliceHeader assembles a slice header declaring no reference
// context (every record unmapped) and the given record count, ahead of
// the numBlocks blocks that follow it.
func buildSliceHeader(numRecords, numBlocks int32) []byte {
	b := appendITF8(nil, -1) // refID: none
	b = appendITF8(b, 0)     // alignment start
	b = appendITF8(b, 0)     // alignment span
	b = appendITF8(b, numRecords)
	b = appendLTF8(b, 0) // record counter
	b = appendITF8(b, numBlocks)
	b = appendITF8(b, 0)  // zero block content IDs
	b = appendITF8(b, -1) // no embedded reference
	b = append(b, make([]byte, 16)...)
	return b
}

// TestReadSingleUnmappedRecord is the literal spec end-to-end scenario: a
// CRAM stream built from a single unmapped record and a SAM header
// declaring one program decodes to exactly one record with the Unmapped
// flag set and no reference.
func TestReadSingleUnmappedRecord(t *testing.T) {
	var stream bytes.Buffer

	var def FileDefinition
	copy(def.Magic[:], "CRAM")
	def.Major, def.Minor = 3, 0
	copy(def.ID[:], "test-id")
	stream.Write(def.Magic[:])
	stream.WriteByte(def.Major)
	stream.WriteByte(def.Minor)
	stream.Write(def.ID[:])

	headerText := []byte("@HD\tVN:1.6\n@PG\tID:test\tPN:test\n")
	var headerPayload []byte
	headerPayload = append(headerPayload, byte(len(headerText)), 0, 0, 0)
	headerPayload = append(headerPayload, headerText...)
	headerBlock := buildBlock(ContentFileHeader, 0, headerPayload)
	stream.Write(buildContainer(-1, 0, 0, 0, 1, headerBlock))

	chBlock := buildBlock(ContentCompressionHeader, 0, buildCompressionHeader())

	sliceHeaderBlock := buildBlock(ContentSliceHeader, 0, buildSliceHeader(1, 2))
	coreBlock := buildBlock(ContentCoreData, CoreDataContentID, nil)
	externalBlock := buildBlock(ContentExternalData, 0, []byte{4, 0}) // BF=Unmapped(4), RL=0
	var slicePayload []byte
	slicePayload = append(slicePayload, sliceHeaderBlock...)
	slicePayload = append(slicePayload, coreBlock...)
	slicePayload = append(slicePayload, externalBlock...)

	var containerPayload []byte
	containerPayload = append(containerPayload, chBlock...)
	containerPayload = append(containerPayload, slicePayload...)
	stream.Write(buildContainer(-1, 0, 0, 1, 4, containerPayload))

	stream.Write(eofContainer)

	rd, err := NewReader(&stream, nil, DefaultOptions())
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if major, minor := rd.Definition.Version(); major < 3 {
		t.Errorf("Version() = %d.%d, want major >= 3", major, minor)
	}
	if len(rd.Header.Progs()) != 1 {
		t.Errorf("len(Header.Progs()) = %d, want 1", len(rd.Header.Progs()))
	}

	rr := rd.Records()
	if !rr.Next() {
		t.Fatalf("Next() = false on first record, Err() = %v", rr.Err())
	}
	rec := rr.Record()
	t.Log(utter.Sdump(rec))
	if rec.BAMFlags&sam.Unmapped == 0 {
		t.Errorf("record flags = %v, want Unmapped set", rec.BAMFlags)
	}
	if rec.ReferenceID != -1 {
		t.Errorf("ReferenceID = %d, want -1", rec.ReferenceID)
	}

	if rr.Next() {
		t.Errorf("Next() = true after the only record; got %+v", rr.Record())
	}
	if err := rr.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}
