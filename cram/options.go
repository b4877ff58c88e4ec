// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

// Options configures the behaviour of a Reader. The zero value is not a
// valid Options; use DefaultOptions and override individual fields.
type Options struct {
	// PreserveReadNames mirrors the preservation map's RN flag back to the
	// caller; it does not alter decoding, which always honours whatever
	// the stream's own compression header declares.
	PreserveReadNames bool

	// RequireReference causes decoding to fail with ErrMissingReference as
	// soon as a mapped record is encountered and no reference repository
	// was supplied, rather than decoding with an all-N reference.
	RequireReference bool

	// BlockSizeLimit rejects any block whose declared uncompressed size
	// exceeds the limit, before allocating a buffer for it. Zero means no
	// limit.
	BlockSizeLimit int

	// ValidateCRC enables CRC-32 validation of block and container
	// framing. Defaults to true.
	ValidateCRC bool
}

// DefaultOptions returns the Options used by NewReader when none are
// supplied: CRC validation on, no reference requirement, no size limit.
func DefaultOptions() Options {
	return Options{ValidateCRC: true}
}
