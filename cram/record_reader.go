// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"fmt"

	"github.com/biogo/cram/sam"
)

// decodeRecord decodes one record's data-series columns against x and
// reconstructs its bases from refSeq (refStart..refStart+len(refSeq)-1,
// 1-based) and its feature list. prevAP threads the running alignment
// start used when the compression header's preservation map declares the
// AP data series delta-encoded.
//
// See CRAM spec section 3 ("Record") and section 4.5.
func decodeRecord(x *executor, ch *CompressionHeader, sliceCtx referenceSequenceContext, refSeq []byte, refStart int, prevAP *int32) (*Record, error) {
	bfRaw, err := readSeriesInt(x, ch.dataSeries[seriesBF])
	if err != nil {
		return nil, fmt.Errorf("BF: %w", err)
	}
	bf := sam.Flags(uint16(bfRaw))

	cfRaw, err := readSeriesInt(x, ch.dataSeries[seriesCF])
	if err != nil {
		return nil, fmt.Errorf("CF: %w", err)
	}
	cf := cramFlags(byte(cfRaw))

	var refID int32
	if sliceCtx.isMany() {
		refID, err = readSeriesInt(x, ch.dataSeries[seriesRI])
		if err != nil {
			return nil, fmt.Errorf("RI: %w", err)
		}
	} else if sliceCtx.kind == refContextSingle {
		refID = int32(sliceCtx.id)
	} else {
		refID = -1
	}

	rl, err := readSeriesInt(x, ch.dataSeries[seriesRL])
	if err != nil {
		return nil, fmt.Errorf("RL: %w", err)
	}

	var ap int32
	if enc := ch.dataSeries[seriesAP]; enc != nil {
		delta, err := x.readInteger(enc)
		if err != nil {
			return nil, fmt.Errorf("AP: %w", err)
		}
		if ch.preservation.alignmentPositionDelta {
			*prevAP += delta
			ap = *prevAP
		} else {
			ap = delta
			*prevAP = delta
		}
	}

	rg, err := readSeriesInt(x, ch.dataSeries[seriesRG])
	if err != nil {
		return nil, fmt.Errorf("RG: %w", err)
	}
	if ch.dataSeries[seriesRG] == nil {
		rg = -1
	}

	var readName string
	if ch.preservation.preserveReadNames {
		b, err := readSeriesBytes(x, ch.dataSeries[seriesRN])
		if err != nil {
			return nil, fmt.Errorf("RN: %w", err)
		}
		readName = string(b)
	}

	var mateRefID int32 = -1
	var mateFlags, matePos, templateSize, nextFragDist int32
	if bf&sam.Paired != 0 {
		if cf.has(cramFlagDetached) {
			if mateFlags, err = readSeriesInt(x, ch.dataSeries[seriesMF]); err != nil {
				return nil, fmt.Errorf("MF: %w", err)
			}
			if mateRefID, err = readSeriesInt(x, ch.dataSeries[seriesNS]); err != nil {
				return nil, fmt.Errorf("NS: %w", err)
			}
			if matePos, err = readSeriesInt(x, ch.dataSeries[seriesNP]); err != nil {
				return nil, fmt.Errorf("NP: %w", err)
			}
			if templateSize, err = readSeriesInt(x, ch.dataSeries[seriesTS]); err != nil {
				return nil, fmt.Errorf("TS: %w", err)
			}
		} else if cf.has(cramFlagHasMateDownstream) {
			if nextFragDist, err = readSeriesInt(x, ch.dataSeries[seriesNF]); err != nil {
				return nil, fmt.Errorf("NF: %w", err)
			}
		}
	}

	tagLine, err := readSeriesInt(x, ch.dataSeries[seriesTL])
	if err != nil {
		return nil, fmt.Errorf("TL: %w", err)
	}
	tags, err := decodeTags(x, ch, int(tagLine))
	if err != nil {
		return nil, err
	}

	var features []Feature
	if bf&sam.Unmapped == 0 {
		fn, err := readSeriesInt(x, ch.dataSeries[seriesFN])
		if err != nil {
			return nil, fmt.Errorf("FN: %w", err)
		}
		features, err = decodeFeatures(x, ch, int(fn))
		if err != nil {
			return nil, err
		}
	}

	var mq int32
	if enc := ch.dataSeries[seriesMQ]; enc != nil {
		if mq, err = x.readInteger(enc); err != nil {
			return nil, fmt.Errorf("MQ: %w", err)
		}
	}

	var bases []byte
	if bf&sam.Unmapped != 0 {
		bases = make([]byte, rl)
		for i := range bases {
			b, err := readSeriesInt(x, ch.dataSeries[seriesBA])
			if err != nil {
				return nil, fmt.Errorf("BA: %w", err)
			}
			bases[i] = byte(b)
		}
	} else {
		bases = reconstructBases(int(rl), features, refSeq, refStart, int(ap), ch.preservation.substitutionMatrix)
	}

	var qualities []byte
	if cf.has(cramFlagQualityScoresStored) {
		qualities = make([]byte, rl)
		for i := range qualities {
			q, err := readSeriesInt(x, ch.dataSeries[seriesQS])
			if err != nil {
				return nil, fmt.Errorf("QS: %w", err)
			}
			qualities[i] = byte(q)
		}
	}

	return &Record{
		BAMFlags:             bf,
		CRAMFlags:            cf,
		ReferenceID:          int(refID),
		ReadLength:           int(rl),
		AlignmentStart:       int(ap),
		ReadGroupID:          int(rg),
		ReadName:             readName,
		MateFlags:            byte(mateFlags),
		MateReferenceID:      int(mateRefID),
		MateAlignmentStart:   int(matePos),
		TemplateSize:         int(templateSize),
		NextFragmentDistance: int(nextFragDist),
		MappingQuality:       byte(mq),
		Bases:                sam.NewSeq(bases),
		Qualities:            qualities,
		Features:             features,
		Tags:                 tags,
	}, nil
}

// decodeFeatures decodes n read features, each a (code, position-delta)
// pair followed by code-specific payload columns.
func decodeFeatures(x *executor, ch *CompressionHeader, n int) ([]Feature, error) {
	features := make([]Feature, n)
	pos := 0
	for i := range features {
		codeRaw, err := readSeriesInt(x, ch.dataSeries[seriesFC])
		if err != nil {
			return nil, fmt.Errorf("FC: %w", err)
		}
		delta, err := readSeriesInt(x, ch.dataSeries[seriesFP])
		if err != nil {
			return nil, fmt.Errorf("FP: %w", err)
		}
		pos += int(delta)

		f := Feature{Code: featureCode(byte(codeRaw)), Position: pos}
		switch f.Code {
		case featureSubstitution:
			c, err := readSeriesInt(x, ch.dataSeries[seriesBS])
			if err != nil {
				return nil, fmt.Errorf("BS: %w", err)
			}
			f.SubstitutionCode = byte(c)
		case featureInsertion:
			f.Bases, err = readSeriesBytes(x, ch.dataSeries[seriesIN])
			if err != nil {
				return nil, fmt.Errorf("IN: %w", err)
			}
		case featureInsertBase:
			b, err := readSeriesInt(x, ch.dataSeries[seriesBA])
			if err != nil {
				return nil, fmt.Errorf("BA: %w", err)
			}
			f.Base = byte(b)
		case featureDeletion:
			l, err := readSeriesInt(x, ch.dataSeries[seriesDL])
			if err != nil {
				return nil, fmt.Errorf("DL: %w", err)
			}
			f.Length = int(l)
		case featureReferenceSkip:
			l, err := readSeriesInt(x, ch.dataSeries[seriesRS])
			if err != nil {
				return nil, fmt.Errorf("RS: %w", err)
			}
			f.Length = int(l)
		case featurePadding:
			l, err := readSeriesInt(x, ch.dataSeries[seriesPD])
			if err != nil {
				return nil, fmt.Errorf("PD: %w", err)
			}
			f.Length = int(l)
		case featureHardClip:
			l, err := readSeriesInt(x, ch.dataSeries[seriesHC])
			if err != nil {
				return nil, fmt.Errorf("HC: %w", err)
			}
			f.Length = int(l)
		case featureSoftClip:
			f.Bases, err = readSeriesBytes(x, ch.dataSeries[seriesSC])
			if err != nil {
				return nil, fmt.Errorf("SC: %w", err)
			}
		case featureBasesStretch:
			f.Bases, err = readSeriesBytes(x, ch.dataSeries[seriesBB])
			if err != nil {
				return nil, fmt.Errorf("BB: %w", err)
			}
		case featureScoresStretch:
			f.Qualities, err = readSeriesBytes(x, ch.dataSeries[seriesQQ])
			if err != nil {
				return nil, fmt.Errorf("QQ: %w", err)
			}
		case featureQualityScore:
			q, err := readSeriesInt(x, ch.dataSeries[seriesQS])
			if err != nil {
				return nil, fmt.Errorf("QS: %w", err)
			}
			f.Quality = byte(q)
		case featureBase:
			b, err := readSeriesInt(x, ch.dataSeries[seriesBA])
			if err != nil {
				return nil, fmt.Errorf("BA: %w", err)
			}
			f.Base = byte(b)
			q, err := readSeriesInt(x, ch.dataSeries[seriesQS])
			if err != nil {
				return nil, fmt.Errorf("QS: %w", err)
			}
			f.Quality = byte(q)
		default:
			return nil, fmt.Errorf("%w: unknown feature code %q", ErrCorruptStream, byte(f.Code))
		}
		features[i] = f
	}
	return features, nil
}

// reconstructBases replays features against the reference in read-position
// order, accumulating a read cursor (pos) and a reference cursor
// (refCursor), identical in structure to how sam.Cigar.Lengths walks a
// CIGAR accumulating separate reference/query consumption.
//
// See SPEC_FULL.md section 4.5.
func reconstructBases(readLength int, features []Feature, refSeq []byte, refStart, alignmentStart int, sm substitutionMatrix) []byte {
	bases := make([]byte, 0, readLength)
	refCursor := alignmentStart
	pos, fi := 1, 0
	for pos <= readLength {
		if fi < len(features) && features[fi].Position == pos {
			f := features[fi]
			fi++
			switch f.Code {
			case featureSubstitution:
				ref := referenceBaseAt(refSeq, refStart, refCursor)
				bases = append(bases, sm.decode(ref, f.SubstitutionCode))
				refCursor++
				pos++
			case featureInsertion, featureBasesStretch, featureSoftClip:
				bases = append(bases, f.Bases...)
				pos += len(f.Bases)
			case featureInsertBase:
				bases = append(bases, f.Base)
				pos++
			case featureBase:
				bases = append(bases, f.Base)
				refCursor++
				pos++
			case featureDeletion, featureReferenceSkip:
				refCursor += f.Length
			case featurePadding:
				pos += f.Length
			case featureHardClip, featureQualityScore, featureScoresStretch:
				// Consume neither cursor; quality-only features carry no
				// base payload.
			}
			continue
		}
		bases = append(bases, referenceBaseAt(refSeq, refStart, refCursor))
		refCursor++
		pos++
	}
	return bases
}

func referenceBaseAt(refSeq []byte, refStart, pos int) byte {
	idx := pos - refStart
	if refSeq == nil || idx < 0 || idx >= len(refSeq) {
		return 'N'
	}
	return refSeq[idx]
}

// decodeTags decodes the tag set named by tagLine (an index into the
// preservation map's tag-ID dictionary), reusing each tagKey's packed
// [name0, name1, type] bytes as the first three bytes of the resulting
// sam.Aux, matching sam.Aux's own binary layout.
func decodeTags(x *executor, ch *CompressionHeader, tagLine int) (sam.AuxFields, error) {
	if tagLine < 0 || tagLine >= len(ch.preservation.tagIDDictionary) {
		return nil, nil
	}
	keys := ch.preservation.tagIDDictionary[tagLine]
	if len(keys) == 0 {
		return nil, nil
	}
	tags := make(sam.AuxFields, 0, len(keys))
	for _, k := range keys {
		enc, ok := ch.tagEncoding[k]
		if !ok {
			return nil, fmt.Errorf("%w: no encoding for tag %q", ErrCorruptStream, k)
		}
		val, err := x.readBytes(enc)
		if err != nil {
			return nil, fmt.Errorf("tag %q: %w", k, err)
		}
		aux := make(sam.Aux, 0, 3+len(val))
		aux = append(aux, k[0], k[1], k[2])
		aux = append(aux, val...)
		tags = append(tags, aux)
	}
	return tags, nil
}

func readSeriesInt(x *executor, enc *encoding) (int32, error) {
	if enc == nil {
		return 0, nil
	}
	return x.readInteger(enc)
}

func readSeriesBytes(x *executor, enc *encoding) ([]byte, error) {
	if enc == nil {
		return nil, nil
	}
	return x.readBytes(enc)
}
