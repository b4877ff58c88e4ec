// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import "errors"

// Sentinel errors returned by the decoding core. Callers should use
// errors.Is against these values rather than matching error text, since
// the text is always prefixed with additional positional context.
var (
	// ErrInvalidMagic is returned when a file definition's magic bytes
	// are not "CRAM".
	ErrInvalidMagic = errors.New("cram: invalid file magic")

	// ErrUnsupportedVersion is returned when a file definition declares a
	// major/minor version this decoder does not support.
	ErrUnsupportedVersion = errors.New("cram: unsupported version")

	// ErrCorruptBlock is returned for block CRC mismatches, framing
	// truncation, or a decompressed size that disagrees with the block
	// header.
	ErrCorruptBlock = errors.New("cram: corrupt block")

	// ErrCorruptStream is returned when an entropy coder's invariants are
	// violated: a truncated payload, a frequency table whose sum exceeds
	// 4096 or that leaves a decoded slot uncovered, or an illegal
	// run-length encoding in a table.
	ErrCorruptStream = errors.New("cram: corrupt stream")

	// ErrEncodingMismatch is returned when a data series is decoded with
	// an encoding whose output type does not match what the caller
	// requested (for example, an integer encoding invoked for a byte
	// array).
	ErrEncodingMismatch = errors.New("cram: encoding mismatch")

	// ErrMissingReference is returned when a mapped record requires a
	// reference sequence that is not present in the reference repository.
	ErrMissingReference = errors.New("cram: missing reference sequence")

	// ErrInvalidReferenceSpan is returned when an alignment start/end pair
	// is inconsistent with the length of the reference sequence it is
	// drawn from.
	ErrInvalidReferenceSpan = errors.New("cram: invalid reference span")

	// ErrUnsupportedMethod is returned for a block compression method
	// this decoder recognises but does not implement (RANS Nx16, adaptive
	// arithmetic, and name tokenisation).
	ErrUnsupportedMethod = errors.New("cram: unsupported compression method")
)
