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

// Package digest streams image bytes through a cryptographic hash
// accumulator while they're read or written, so that every checkpoint
// carries an end-to-end integrity digest (spec.md §4.4).
package digest

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrDigestMismatch is returned by Verify (and by the engine's start-up image
// load) when the accumulated hash of a file does not match the digest
// recorded for it in VERSION.
var ErrDigestMismatch = errors.New("digest: mismatch")

// Size is the byte length of an ImageDigest (MD5: 128 bits).
const Size = md5.Size

// ImageDigest is a 128-bit digest of an image's content below its version
// header, as recorded in a VERSION file's imageMD5Digest field.
type ImageDigest [Size]byte

// String hex-encodes the digest, matching the textual form stored in
// VERSION.
func (d ImageDigest) String() string { return hex.EncodeToString(d[:]) }

// IsZero reports whether d is the zero digest (no digest recorded, e.g. a
// fresh image being read for the first time after upgrading onto a layout
// that requires one).
func (d ImageDigest) IsZero() bool { return d == ImageDigest{} }

// Parse decodes a hex-encoded digest as stored in VERSION's imageMD5Digest
// field.
func Parse(s string) (ImageDigest, error) {
	var d ImageDigest
	if s == "" {
		return d, nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("digest: malformed hex %q: %w", s, err)
	}
	if len(raw) != Size {
		return d, fmt.Errorf("digest: want %d bytes, got %d", Size, len(raw))
	}
	copy(d[:], raw)
	return d, nil
}
