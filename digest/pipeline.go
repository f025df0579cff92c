// Copyright 2024 The Tessera authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package digest

import (
	"crypto/md5"
	"fmt"
	"hash"
	"io"
)

// Writer wraps an io.Writer, accumulating an ImageDigest of everything
// written to it. Callers call Sum once the underlying sink has been fully
// flushed and fsynced, then record that digest in VERSION — never before,
// since the digest must describe exactly what's durable on disk.
type Writer struct {
	w io.Writer
	h hash.Hash
}

// NewWriter returns a Writer that tees everything written through it into w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, h: md5.New()}
}

func (p *Writer) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if n > 0 {
		p.h.Write(b[:n])
	}
	return n, err
}

// Sum returns the digest of everything written so far.
func (p *Writer) Sum() ImageDigest {
	var d ImageDigest
	copy(d[:], p.h.Sum(nil))
	return d
}

// Reader wraps an io.Reader, accumulating an ImageDigest of everything read
// from it.
type Reader struct {
	r io.Reader
	h hash.Hash
}

// NewReader returns a Reader that accumulates a digest of everything read
// through it from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, h: md5.New()}
}

func (p *Reader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.h.Write(b[:n])
	}
	return n, err
}

// Sum returns the digest of everything read so far.
func (p *Reader) Sum() ImageDigest {
	var d ImageDigest
	copy(d[:], p.h.Sum(nil))
	return d
}

// Verify reads all of src to completion, discarding the bytes into dst (use
// io.Discard if the caller only needs the digest, e.g. because a separate
// decoder pass already consumed the content), and returns an error if the
// accumulated digest doesn't match want. If want is the zero digest — no
// prior digest was recorded, e.g. the first read after an upgrade onto a
// layout that requires one — the computed hash is accepted unconditionally
// and returned as the adopted digest.
func Verify(src io.Reader, dst io.Writer, want ImageDigest, name string) (ImageDigest, error) {
	pr := NewReader(src)
	if _, err := io.Copy(dst, pr); err != nil {
		return ImageDigest{}, fmt.Errorf("digest: reading %s: %w", name, err)
	}
	got := pr.Sum()
	if want.IsZero() {
		return got, nil
	}
	if got != want {
		return ImageDigest{}, fmt.Errorf("%w: %s: computed %s, want %s", ErrDigestMismatch, name, got, want)
	}
	return got, nil
}
