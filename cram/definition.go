// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"bytes"
	"fmt"
	"io"
)

// magic is the fixed 4-byte CRAM file magic.
var magic = [4]byte{'C', 'R', 'A', 'M'}

// FileDefinition is the fixed 26-byte prelude of a CRAM stream: the file
// magic, the major/minor format version, and a 20-byte opaque file
// identifier.
//
// See CRAM spec section 6.
type FileDefinition struct {
	Magic [4]byte
	Major byte
	Minor byte
	ID    [20]byte
}

// Version returns the major and minor format version of the definition.
func (d FileDefinition) Version() (major, minor byte) {
	return d.Major, d.Minor
}

// readFrom populates a FileDefinition from r, validating the magic bytes
// and that the major version is 2 or 3.
func (d *FileDefinition) readFrom(r io.Reader) error {
	var buf [26]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	copy(d.Magic[:], buf[:4])
	d.Major = buf[4]
	d.Minor = buf[5]
	copy(d.ID[:], buf[6:26])
	if !bytes.Equal(d.Magic[:], magic[:]) {
		return fmt.Errorf("%w: magic bytes %q", ErrInvalidMagic, d.Magic)
	}
	if d.Major < 2 || d.Major > 3 {
		return fmt.Errorf("%w: %d.%d", ErrUnsupportedVersion, d.Major, d.Minor)
	}
	return nil
}
