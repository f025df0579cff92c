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

package codec

import "io"

// Prefix is the fixed-position header at the start of every image file. Its
// shape depends on LayoutVersion: some fields are only present on layouts
// new enough to have introduced them, per the hasX functions in version.go.
type Prefix struct {
	LayoutVersion   int32
	NamespaceID     int32
	NumFiles        int64
	GenerationStamp int64 // zero if layout predates LayoutGenerationStamp.
	ImageTxId       int64 // zero if layout predates LayoutStoredTxIds.
	Compressed      bool
	CodecName       string // empty unless Compressed.
}

// writePrefix writes p's fields to w in the order and width dictated by
// p.LayoutVersion.
func writePrefix(w io.Writer, p Prefix) error {
	if err := writeInt32(w, p.LayoutVersion); err != nil {
		return err
	}
	if err := writeInt32(w, p.NamespaceID); err != nil {
		return err
	}
	if numFilesIsInt64(p.LayoutVersion) {
		if err := writeInt64(w, p.NumFiles); err != nil {
			return err
		}
	} else {
		if err := writeInt32(w, int32(p.NumFiles)); err != nil {
			return err
		}
	}
	if hasGenerationStamp(p.LayoutVersion) {
		if err := writeInt64(w, p.GenerationStamp); err != nil {
			return err
		}
	}
	if hasStoredTxId(p.LayoutVersion) {
		if err := writeInt64(w, p.ImageTxId); err != nil {
			return err
		}
	}
	if err := writeBool(w, p.Compressed); err != nil {
		return err
	}
	if p.Compressed {
		if err := writeString(w, p.CodecName); err != nil {
			return err
		}
	}
	return nil
}

// readPrefix parses a Prefix from the start of r. name identifies the
// source file in any corruption error.
func readPrefix(r io.Reader, name string) (Prefix, error) {
	var p Prefix
	var err error
	if p.LayoutVersion, err = readInt32(r, name); err != nil {
		return Prefix{}, err
	}
	if p.LayoutVersion < LayoutCurrent {
		return Prefix{}, corruptf(name, "layout version %d is newer than this implementation's %d", p.LayoutVersion, LayoutCurrent)
	}
	if p.NamespaceID, err = readInt32(r, name); err != nil {
		return Prefix{}, err
	}
	if numFilesIsInt64(p.LayoutVersion) {
		if p.NumFiles, err = readInt64(r, name); err != nil {
			return Prefix{}, err
		}
	} else {
		n, err := readInt32(r, name)
		if err != nil {
			return Prefix{}, err
		}
		p.NumFiles = int64(n)
	}
	if p.NumFiles < 0 {
		return Prefix{}, corruptf(name, "negative numFiles %d", p.NumFiles)
	}
	if hasGenerationStamp(p.LayoutVersion) {
		if p.GenerationStamp, err = readInt64(r, name); err != nil {
			return Prefix{}, err
		}
	}
	if hasStoredTxId(p.LayoutVersion) {
		if p.ImageTxId, err = readInt64(r, name); err != nil {
			return Prefix{}, err
		}
	}
	if p.Compressed, err = readBool(r, name); err != nil {
		return Prefix{}, err
	}
	if p.Compressed {
		if p.CodecName, err = readString(r, name); err != nil {
			return Prefix{}, err
		}
		if _, ok := Lookup(p.CodecName); !ok {
			return Prefix{}, corruptf(name, "%w %q", ErrUnknownCodec, p.CodecName)
		}
	}
	return p, nil
}
