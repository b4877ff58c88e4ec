// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package refseq adapts an fai-indexed FASTA file to the reference
// repository contract the cram package's record decoder uses to
// reconstruct mapped bases.
//
// See SPEC_FULL.md section 6 ("External interfaces").
package refseq

import (
	"fmt"
	"io"

	"github.com/biogo/cram/cram"
	"github.com/biogo/cram/fai"
)

// Repository and Sequence are aliases of the cram package's reference
// repository interfaces, named here to match how callers of this package
// think about them: a FASTA-backed repository of named sequences.
type (
	Repository = cram.ReferenceRepository
	Sequence   = cram.ReferenceSequence
)

// FastaRepository is a Repository backed by a single FASTA file and its
// companion .fai index, opened via mmap through fai.File.
type FastaRepository struct {
	file *fai.File
	idx  fai.Index
}

// Open opens the FASTA file at fastaPath, indexed by idx, as a
// FastaRepository. Callers typically obtain idx from fai.ReadFrom against
// the FASTA's ".fai" sibling file.
func Open(fastaPath string, idx fai.Index) (*FastaRepository, error) {
	f, err := fai.OpenFile(fastaPath, idx)
	if err != nil {
		return nil, err
	}
	return &FastaRepository{file: f, idx: idx}, nil
}

// Close releases the underlying mmapped FASTA file. Sequences obtained
// from r must not be used after Close.
func (r *FastaRepository) Close() error { return r.file.Close() }

// Get returns the named reference sequence, or an error if idx has no
// record for name.
func (r *FastaRepository) Get(name string) (Sequence, error) {
	rec, ok := r.idx[name]
	if !ok {
		return nil, fmt.Errorf("refseq: no sequence %q", name)
	}
	return &fastaSequence{repo: r, rec: rec}, nil
}

// fastaSequence is a Sequence backed by one fai.Record, translating
// cram's 1-based inclusive coordinates to fai's 0-based half-open ones.
type fastaSequence struct {
	repo *FastaRepository
	rec  fai.Record
}

func (s *fastaSequence) Len() int { return s.rec.Length }

func (s *fastaSequence) Region(start, end int) ([]byte, error) {
	if start < 1 || end < start || end > s.rec.Length {
		return nil, fmt.Errorf("refseq: region [%d, %d] out of range for %q (length %d)", start, end, s.rec.Name, s.rec.Length)
	}
	seq, err := s.repo.file.SeqRange(s.rec.Name, start-1, end)
	if err != nil {
		return nil, err
	}
	defer seq.Close()
	buf := make([]byte, end-start+1)
	if _, err := io.ReadFull(seq, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
