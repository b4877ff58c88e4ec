// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"crypto/md5"
)

// referenceSequenceKind distinguishes the three states a
// referenceSequenceContext can be in.
type referenceSequenceKind byte

const (
	refContextNone referenceSequenceKind = iota
	refContextSingle
	refContextMulti
)

// referenceSequenceContext tracks the reference span a container or slice
// covers: a single reference with a start/end range, no reference at all
// (every record unmapped), or a mix of references/mapped-and-unmapped
// records.
//
// See CRAM spec section 4.6.
type referenceSequenceContext struct {
	kind  referenceSequenceKind
	id    int
	start int
	end   int
}

// noneReferenceSequenceContext is the zero-value context: no records have
// been added yet, or every record so far has been unmapped.
var noneReferenceSequenceContext = referenceSequenceContext{kind: refContextNone}

func someReferenceSequenceContext(id, start, end int) referenceSequenceContext {
	return referenceSequenceContext{kind: refContextSingle, id: id, start: start, end: end}
}

// isMany reports whether the context has collapsed to the multi-reference
// state.
func (c referenceSequenceContext) isMany() bool { return c.kind == refContextMulti }

// alignmentSpan returns end-start+1 for a Single context; callers must not
// call it on a None or Multi context.
func (c referenceSequenceContext) alignmentSpan() int { return c.end - c.start + 1 }

// update folds one record's (reference ID, alignment start, alignment end)
// into the context, following the CRAM rule: a Single context stays Single
// only if every update agrees on reference ID, expanding its span to cover
// the new record; any disagreement, or mixing mapped and unmapped records,
// collapses the context to Multi; None stays None only while every update
// is itself unmapped (all three fields absent).
//
// Grounded on noodles-cram's ReferenceSequenceContext::update.
func (c referenceSequenceContext) update(id *int, start, end *int) referenceSequenceContext {
	switch c.kind {
	case refContextSingle:
		if id != nil && start != nil && end != nil && *id == c.id {
			s, e := c.start, c.end
			if *start < s {
				s = *start
			}
			if *end > e {
				e = *end
			}
			return someReferenceSequenceContext(c.id, s, e)
		}
		return referenceSequenceContext{kind: refContextMulti}
	case refContextNone:
		if id == nil && start == nil && end == nil {
			return noneReferenceSequenceContext
		}
		return referenceSequenceContext{kind: refContextMulti}
	default: // refContextMulti
		return referenceSequenceContext{kind: refContextMulti}
	}
}

// normalizedMD5 computes the SAM-specification normalized digest of a
// reference sequence: strip any byte outside the inclusive ASCII-graphic
// range 33..=126, uppercase ASCII letters, then MD5 the result.
//
// See SAM spec section 1.3.2 "Reference MD5 calculation".
func normalizedMD5(sequence []byte) [16]byte {
	h := md5.New()
	for _, b := range sequence {
		if b >= '!' && b <= '~' {
			if b >= 'a' && b <= 'z' {
				b -= 'a' - 'A'
			}
			h.Write([]byte{b})
		}
	}
	var sum [16]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
