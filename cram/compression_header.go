// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"bytes"
	"fmt"
)

// dataSeriesID is a data series' two-character CRAM tag, e.g. "BF", "RL".
//
// See CRAM spec section 3 ("CompressionHeader").
type dataSeriesID [2]byte

// The ~28 CRAM data series. Names follow the CRAM specification exactly.
var (
	seriesBF = dataSeriesID{'B', 'F'} // BAM bit flags
	seriesCF = dataSeriesID{'C', 'F'} // CRAM bit flags
	seriesRI = dataSeriesID{'R', 'I'} // Reference ID
	seriesRL = dataSeriesID{'R', 'L'} // Read length
	seriesAP = dataSeriesID{'A', 'P'} // Alignment start position (delta or absolute)
	seriesRG = dataSeriesID{'R', 'G'} // Read group
	seriesRN = dataSeriesID{'R', 'N'} // Read name
	seriesMF = dataSeriesID{'M', 'F'} // Next mate bit flags
	seriesNS = dataSeriesID{'N', 'S'} // Next fragment reference sequence ID
	seriesNP = dataSeriesID{'N', 'P'} // Next mate alignment start
	seriesTS = dataSeriesID{'T', 'S'} // Template size
	seriesNF = dataSeriesID{'N', 'F'} // Distance to next fragment
	seriesTL = dataSeriesID{'T', 'L'} // Tag line (index into tag-id dictionary)
	seriesFN = dataSeriesID{'F', 'N'} // Number of read features
	seriesFC = dataSeriesID{'F', 'C'} // Feature code
	seriesFP = dataSeriesID{'F', 'P'} // Feature position (delta)
	seriesDL = dataSeriesID{'D', 'L'} // Deletion length
	seriesBB = dataSeriesID{'B', 'B'} // Stretch-of-bases feature bases
	seriesQQ = dataSeriesID{'Q', 'Q'} // Stretch-of-quality-scores feature scores
	seriesBS = dataSeriesID{'B', 'S'} // Base substitution code
	seriesIN = dataSeriesID{'I', 'N'} // Insertion bases
	seriesRS = dataSeriesID{'R', 'S'} // Reference skip length
	seriesPD = dataSeriesID{'P', 'D'} // Padding length
	seriesHC = dataSeriesID{'H', 'C'} // Hard clip length
	seriesSC = dataSeriesID{'S', 'C'} // Soft clip bases
	seriesMQ = dataSeriesID{'M', 'Q'} // Mapping quality
	seriesBA = dataSeriesID{'B', 'A'} // Base (unmapped records)
	seriesQS = dataSeriesID{'Q', 'S'} // Quality score
	seriesTC = dataSeriesID{'T', 'C'} // (deprecated) tag count
	seriesTN = dataSeriesID{'T', 'N'} // (deprecated) tag name/type
)

// substitutionMatrix is the CRAM 5x4 code table mapping (reference base,
// code) pairs back onto a substituted base. Rows are indexed by reference
// base (A, C, G, T, N in that order); columns 0..3 select among the four
// other bases in the order the compression header declares.
type substitutionMatrix [5][4]byte

var substitutionBases = [5]byte{'A', 'C', 'G', 'T', 'N'}

// decode returns the substituted base for reference base ref under code.
func (m substitutionMatrix) decode(ref byte, code byte) byte {
	row := baseRow(ref)
	if row < 0 || int(code) > 3 {
		return 'N'
	}
	return m[row][code]
}

func baseRow(b byte) int {
	switch b {
	case 'A':
		return 0
	case 'C':
		return 1
	case 'G':
		return 2
	case 'T':
		return 3
	default:
		return 4
	}
}

// readSubstitutionMatrix parses the 5 packed bytes of a substitution
// matrix, each byte holding four 2-bit column codes for one reference row
// in order A, C, G, T, N; the code table itself assigns each of the four
// remaining bases (alphabetical, excluding the row's own base) to codes
// 0..3 in the order the row's 5 bytes declare.
func readSubstitutionMatrix(b [5]byte) substitutionMatrix {
	var m substitutionMatrix
	for row := 0; row < 5; row++ {
		others := otherBases(substitutionBases[row])
		packed := b[row]
		for code := 0; code < 4; code++ {
			idx := (packed >> uint((3-code)*2)) & 0x3
			m[row][code] = others[idx]
		}
	}
	return m
}

func otherBases(ref byte) [4]byte {
	var out [4]byte
	i := 0
	for _, b := range substitutionBases {
		if b != ref {
			out[i] = b
			i++
		}
	}
	return out
}

// tagKey is a 3-byte packed SAM tag key: two ASCII tag letters and a
// one-byte SAM value type.
type tagKey [3]byte

// preservationMap holds the CRAM compression header's boolean
// preservation flags, substitution matrix, and tag-ID dictionary.
//
// See CRAM spec section 3 ("Preservation map").
type preservationMap struct {
	preserveReadNames      bool // RN
	alignmentPositionDelta bool // AP
	referenceRequired      bool // RR
	substitutionMatrix     substitutionMatrix
	tagIDDictionary        [][]tagKey // TD
}

func readPreservationMap(r *byteReader) (*preservationMap, error) {
	er := &errorReader{r: r}
	dataLen := er.itf8()
	if er.err != nil {
		return nil, er.err
	}
	body := make([]byte, dataLen)
	if _, err := readFullErrorReader(er, body); err != nil {
		return nil, err
	}
	br := &byteReader{b: body}
	ber := &errorReader{r: br}

	pm := &preservationMap{
		preserveReadNames: true,
		referenceRequired: true,
	}
	mapSize := ber.itf8()
	for i := int32(0); i < mapSize; i++ {
		var key [2]byte
		if _, err := readFullErrorReader(ber, key[:]); err != nil {
			return nil, err
		}
		switch key {
		case [2]byte{'R', 'N'}:
			pm.preserveReadNames = readBoolValue(ber)
		case [2]byte{'A', 'P'}:
			pm.alignmentPositionDelta = readBoolValue(ber)
		case [2]byte{'R', 'R'}:
			pm.referenceRequired = readBoolValue(ber)
		case [2]byte{'S', 'M'}:
			var sm [5]byte
			if _, err := readFullErrorReader(ber, sm[:]); err != nil {
				return nil, err
			}
			pm.substitutionMatrix = readSubstitutionMatrix(sm)
		case [2]byte{'T', 'D'}:
			tdLen := ber.itf8()
			tdBytes := make([]byte, tdLen)
			if _, err := readFullErrorReader(ber, tdBytes); err != nil {
				return nil, err
			}
			pm.tagIDDictionary = parseTagIDDictionary(tdBytes)
		default:
			return nil, fmt.Errorf("%w: unknown preservation map key %q", ErrCorruptStream, key)
		}
		if ber.err != nil {
			return nil, ber.err
		}
	}
	return pm, nil
}

func readBoolValue(r *errorReader) bool {
	var b [1]byte
	readFullErrorReader(r, b[:])
	return b[0] != 0
}

// parseTagIDDictionary splits the TD byte array into NUL-separated groups,
// each group a run of concatenated 3-byte tag keys.
func parseTagIDDictionary(b []byte) [][]tagKey {
	var groups [][]tagKey
	for _, part := range bytes.Split(b, []byte{0}) {
		if len(part) == 0 {
			groups = append(groups, nil)
			continue
		}
		var keys []tagKey
		for i := 0; i+3 <= len(part); i += 3 {
			keys = append(keys, tagKey{part[i], part[i+1], part[i+2]})
		}
		groups = append(groups, keys)
	}
	return groups
}

// CompressionHeader is the per-container schema mapping data series and
// tag keys to the encodings used to decode them.
//
// See CRAM spec section 3 ("CompressionHeader").
type CompressionHeader struct {
	preservation *preservationMap
	dataSeries   map[dataSeriesID]*encoding
	tagEncoding  map[tagKey]*encoding
}

func readCompressionHeader(data []byte) (*CompressionHeader, error) {
	br := &byteReader{b: data}

	pm, err := readPreservationMap(br)
	if err != nil {
		return nil, err
	}

	dsMap, err := readDataSeriesEncodingMap(br)
	if err != nil {
		return nil, err
	}

	tagMap, err := readTagEncodingMap(br)
	if err != nil {
		return nil, err
	}

	return &CompressionHeader{preservation: pm, dataSeries: dsMap, tagEncoding: tagMap}, nil
}

func readDataSeriesEncodingMap(r *byteReader) (map[dataSeriesID]*encoding, error) {
	er := &errorReader{r: r}
	dataLen := er.itf8()
	if er.err != nil {
		return nil, er.err
	}
	body := make([]byte, dataLen)
	if _, err := readFullErrorReader(er, body); err != nil {
		return nil, err
	}
	br := &byteReader{b: body}
	ber := &errorReader{r: br}

	m := make(map[dataSeriesID]*encoding)
	count := ber.itf8()
	for i := int32(0); i < count; i++ {
		var key dataSeriesID
		if _, err := readFullErrorReader(ber, key[:]); err != nil {
			return nil, err
		}
		enc, err := readEncoding(br)
		if err != nil {
			return nil, err
		}
		m[key] = enc
	}
	if ber.err != nil {
		return nil, ber.err
	}
	return m, nil
}

func readTagEncodingMap(r *byteReader) (map[tagKey]*encoding, error) {
	er := &errorReader{r: r}
	dataLen := er.itf8()
	if er.err != nil {
		return nil, er.err
	}
	body := make([]byte, dataLen)
	if _, err := readFullErrorReader(er, body); err != nil {
		return nil, err
	}
	br := &byteReader{b: body}
	ber := &errorReader{r: br}

	m := make(map[tagKey]*encoding)
	count := ber.itf8()
	for i := int32(0); i < count; i++ {
		packed := ber.itf8()
		if ber.err != nil {
			return nil, ber.err
		}
		key := tagKey{byte(packed >> 16), byte(packed >> 8), byte(packed)}
		enc, err := readEncoding(br)
		if err != nil {
			return nil, err
		}
		m[key] = enc
	}
	return m, nil
}

// readFullErrorReader drains exactly len(buf) bytes from r into buf, or
// returns r's sticky error.
func readFullErrorReader(r *errorReader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
