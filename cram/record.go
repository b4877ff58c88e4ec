// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"github.com/biogo/cram/sam"
)

// cramFlags are the CRAM-internal per-record bit flags (distinct from the
// BAM flags every record also carries), decoded from the CF data series.
//
// See CRAM spec section 3 ("CRAM flags").
type cramFlags byte

const (
	cramFlagQualityScoresStored cramFlags = 1 << iota
	cramFlagDetached
	cramFlagHasMateDownstream
	cramFlagUnknownMate
)

func (f cramFlags) has(bit cramFlags) bool { return f&bit != 0 }

// featureCode identifies the kind of one read feature, following the CRAM
// 3.0 "feature codes" table (one ASCII byte per feature).
type featureCode byte

// The CRAM read feature codes this decoder understands.
const (
	featureBase          featureCode = 'B' // explicit (base, quality) pair
	featureSubstitution  featureCode = 'X'
	featureInsertion     featureCode = 'I'
	featureDeletion      featureCode = 'D'
	featureInsertBase    featureCode = 'i'
	featureBasesStretch  featureCode = 'b'
	featureQualityScore  featureCode = 'Q'
	featureScoresStretch featureCode = 'q'
	featureHardClip      featureCode = 'H'
	featurePadding       featureCode = 'P'
	featureReferenceSkip featureCode = 'N'
	featureSoftClip      featureCode = 'S'
)

// Feature is one element of a record's read-feature list: a single edit
// against the reference sequence (or, for unmapped/deduced reads, against
// an implicit all-match baseline) positioned at a 1-based offset into the
// read.
//
// See CRAM spec section 3 ("Read features") and section 4.5.
type Feature struct {
	Code     featureCode
	Position int // 1-based offset into the read

	Base             byte   // Base, InsertBase
	Quality          byte   // Base, QualityScore
	Bases            []byte // Insertion, BasesStretch, SoftClip
	Qualities        []byte // ScoresStretch
	Length           int    // Deletion, ReferenceSkip, Padding, HardClip
	SubstitutionCode byte   // Substitution (BS code, 0..3)
}

// Record is one decoded CRAM alignment record: the flattened union of the
// BAM-compatible fields every CRAM record carries plus the CRAM-specific
// feature list bases and quality scores are reconstructed from.
//
// Record is a plain struct rather than a port of a builder type; see
// DESIGN.md for why the spec's Record shape ambiguity is resolved this way.
type Record struct {
	BAMFlags  sam.Flags
	CRAMFlags cramFlags

	ReferenceID    int // -1 if unmapped
	ReadLength     int
	AlignmentStart int // 1-based; 0 if unmapped

	ReadGroupID int // -1 if none
	ReadName    string

	MateFlags            byte // MF data series, detached records only
	MateReferenceID      int  // -1 if none
	MateAlignmentStart   int
	TemplateSize         int
	NextFragmentDistance int // records to skip to reach the mate within the slice

	MappingQuality byte

	Bases     sam.Seq
	Qualities []byte
	Features  []Feature

	Tags sam.AuxFields
}

// IsUnmapped reports whether the record's BAM flags mark it unmapped.
func (r *Record) IsUnmapped() bool { return r.BAMFlags&sam.Unmapped != 0 }
