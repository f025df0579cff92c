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

import (
	"io"

	"github.com/nsimage/nsimage/nstree"
)

// writeFilesUnderConstruction appends the trailer section: a count followed
// by, for each open file, its full path, an inode-shaped payload, and the
// client identity that has it open. Present only on layouts new enough to
// carry it (hasFilesUnderConstruction). Unlike the tree body, each record
// always writes a trailing numLocations:i32, fixed at zero — block
// locations are a runtime concept with no place in a durable checkpoint,
// and are simply discarded on read.
func writeFilesUnderConstruction(w io.Writer, layoutVersion int32, fuc []nstree.FileUnderConstruction) error {
	if err := writeInt32(w, int32(len(fuc))); err != nil {
		return err
	}
	for _, f := range fuc {
		if err := writeString(w, f.Path); err != nil {
			return err
		}
		if err := writeInt16(w, f.Replication); err != nil {
			return err
		}
		if err := writeInt64(w, f.Mtime); err != nil {
			return err
		}
		if err := writeInt64(w, f.PreferredBlockSize); err != nil {
			return err
		}
		if err := writeInt32(w, int32(len(f.Blocks))); err != nil {
			return err
		}
		for _, b := range f.Blocks {
			if err := writeBlock(w, b, layoutVersion); err != nil {
				return err
			}
		}
		if err := writePermission(w, f.Permission); err != nil {
			return err
		}
		if err := writeString(w, f.ClientName); err != nil {
			return err
		}
		if err := writeString(w, f.ClientMachine); err != nil {
			return err
		}
		if err := writeInt32(w, 0); err != nil { // numLocations, always zero.
			return err
		}
	}
	return nil
}

func readFilesUnderConstruction(r io.Reader, layoutVersion int32, name string) ([]nstree.FileUnderConstruction, error) {
	count, err := readInt32(r, name)
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, corruptf(name, "negative files-under-construction count %d", count)
	}
	out := make([]nstree.FileUnderConstruction, count)
	for i := range out {
		f := &out[i]
		if f.Path, err = readString(r, name); err != nil {
			return nil, err
		}
		if f.Replication, err = readInt16(r, name); err != nil {
			return nil, err
		}
		if f.Mtime, err = readInt64(r, name); err != nil {
			return nil, err
		}
		if f.PreferredBlockSize, err = readInt64(r, name); err != nil {
			return nil, err
		}
		numBlocks, err := readInt32(r, name)
		if err != nil {
			return nil, err
		}
		if numBlocks < 0 {
			return nil, corruptf(name, "negative block count %d in files-under-construction entry %q", numBlocks, f.Path)
		}
		f.Blocks = make([]nstree.Block, numBlocks)
		for j := range f.Blocks {
			if f.Blocks[j], err = readBlock(r, layoutVersion, name); err != nil {
				return nil, err
			}
		}
		if f.Permission, err = readPermission(r, name); err != nil {
			return nil, err
		}
		if f.ClientName, err = readString(r, name); err != nil {
			return nil, err
		}
		if f.ClientMachine, err = readString(r, name); err != nil {
			return nil, err
		}
		if _, err := readInt32(r, name); err != nil { // numLocations, discarded.
			return nil, err
		}
	}
	return out, nil
}
