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

// dirBlockSentinel is the numBlocks value that marks a node as a directory
// rather than a file: both kinds share one payload shape, and this sentinel
// is the only thing that tells them apart on read.
const dirBlockSentinel = -1

// missingGenerationStamp is substituted for a block's generation stamp on
// layouts that predate the field (hasGenerationStamp false): the value is
// never written, only conjured up on read so the in-memory block still has
// something in that field.
const missingGenerationStamp = -1

// defaultUpgradePermission is substituted for a node's permission on layouts
// that predate permissionStatus (hasPermissions false): every node from such
// an image is owned by the superuser with the namespace's umask-free default
// mode, matching the permission an upgrade would have assigned had the
// feature existed at write time.
var defaultUpgradePermission = nstree.Permission{User: "root", Group: "supergroup", Mode: 0o755}

// inode is the decoded payload common to both directory and file nodes.
// IsDir is derived from the sentinel read off the wire, not stored
// separately.
type inode struct {
	replication        int16
	mtime              int64
	atime              int64
	preferredBlockSize int64
	blocks             []nstree.Block // nil for a directory.
	nsQuota            int64          // meaningful only when blocks == nil.
	dsQuota            int64          // meaningful only when blocks == nil.
	permission         nstree.Permission
}

// dirInode builds the inode payload for a directory node.
func dirInode(mtime, nsQuota, dsQuota int64, perm nstree.Permission) inode {
	return inode{mtime: mtime, nsQuota: nsQuota, dsQuota: dsQuota, permission: perm}
}

// fileInode builds the inode payload for a file node.
func fileInode(mtime, atime int64, replication int16, preferredBlockSize int64, blocks []nstree.Block, perm nstree.Permission) inode {
	if blocks == nil {
		blocks = []nstree.Block{}
	}
	return inode{
		replication:        replication,
		mtime:              mtime,
		atime:              atime,
		preferredBlockSize: preferredBlockSize,
		blocks:             blocks,
		permission:         perm,
	}
}

// writeInode writes n's payload in the field order and width dictated by
// layoutVersion. Every inode carries replication, mtime, atime, and
// preferredBlockSize positions (the latter two gated by layoutVersion); a
// directory writes zero for the file-only ones and follows the block count
// with its quotas instead of block records.
func writeInode(w io.Writer, layoutVersion int32, n inode) error {
	if err := writeInt16(w, n.replication); err != nil {
		return err
	}
	if err := writeInt64(w, n.mtime); err != nil {
		return err
	}
	if hasAtime(layoutVersion) {
		if err := writeInt64(w, n.atime); err != nil {
			return err
		}
	}
	if hasPreferredBlockSize(layoutVersion) {
		if err := writeInt64(w, n.preferredBlockSize); err != nil {
			return err
		}
	}
	if n.blocks == nil {
		if err := writeInt32(w, dirBlockSentinel); err != nil {
			return err
		}
		if err := writeInt64(w, n.nsQuota); err != nil {
			return err
		}
		if err := writeInt64(w, n.dsQuota); err != nil {
			return err
		}
	} else {
		if err := writeInt32(w, int32(len(n.blocks))); err != nil {
			return err
		}
		for _, b := range n.blocks {
			if err := writeBlock(w, b, layoutVersion); err != nil {
				return err
			}
		}
	}
	if hasPermissions(layoutVersion) {
		return writePermission(w, n.permission)
	}
	return nil
}

// readInode parses one node's payload and reports whether it was a
// directory.
func readInode(r io.Reader, layoutVersion int32, name string) (inode, bool, error) {
	var n inode
	var err error
	if n.replication, err = readInt16(r, name); err != nil {
		return inode{}, false, err
	}
	if n.mtime, err = readInt64(r, name); err != nil {
		return inode{}, false, err
	}
	if hasAtime(layoutVersion) {
		if n.atime, err = readInt64(r, name); err != nil {
			return inode{}, false, err
		}
	}
	if hasPreferredBlockSize(layoutVersion) {
		if n.preferredBlockSize, err = readInt64(r, name); err != nil {
			return inode{}, false, err
		}
	}
	numBlocks, err := readInt32(r, name)
	if err != nil {
		return inode{}, false, err
	}
	isDir := numBlocks == dirBlockSentinel
	if isDir {
		if n.nsQuota, err = readInt64(r, name); err != nil {
			return inode{}, false, err
		}
		if n.dsQuota, err = readInt64(r, name); err != nil {
			return inode{}, false, err
		}
	} else {
		if numBlocks < 0 {
			return inode{}, false, corruptf(name, "negative block count %d", numBlocks)
		}
		n.blocks = make([]nstree.Block, numBlocks)
		for i := range n.blocks {
			if n.blocks[i], err = readBlock(r, layoutVersion, name); err != nil {
				return inode{}, false, err
			}
		}
		// Back-compat oddity: a zero preferredBlockSize with more than one
		// block means the layout predates the field; infer it from the
		// first block instead of leaving it at zero.
		if n.preferredBlockSize == 0 && len(n.blocks) > 1 {
			n.preferredBlockSize = n.blocks[0].NumBytes
		}
	}
	if hasPermissions(layoutVersion) {
		if n.permission, err = readPermission(r, name); err != nil {
			return inode{}, false, err
		}
	} else {
		n.permission = defaultUpgradePermission
	}
	return n, isDir, nil
}

func writeBlock(w io.Writer, b nstree.Block, layoutVersion int32) error {
	if err := writeInt64(w, b.BlockID); err != nil {
		return err
	}
	if err := writeInt64(w, b.NumBytes); err != nil {
		return err
	}
	if hasGenerationStamp(layoutVersion) {
		return writeInt64(w, b.GenerationStamp)
	}
	return nil
}

// readBlock parses one block record. On layouts that predate the
// generation stamp field, GenerationStamp is set to missingGenerationStamp
// rather than read off the wire.
func readBlock(r io.Reader, layoutVersion int32, name string) (nstree.Block, error) {
	var b nstree.Block
	var err error
	if b.BlockID, err = readInt64(r, name); err != nil {
		return b, err
	}
	if b.NumBytes, err = readInt64(r, name); err != nil {
		return b, err
	}
	if hasGenerationStamp(layoutVersion) {
		if b.GenerationStamp, err = readInt64(r, name); err != nil {
			return b, err
		}
	} else {
		b.GenerationStamp = missingGenerationStamp
	}
	return b, nil
}

func writePermission(w io.Writer, p nstree.Permission) error {
	if err := writeString(w, p.User); err != nil {
		return err
	}
	if err := writeString(w, p.Group); err != nil {
		return err
	}
	return writeInt16(w, p.Mode)
}

func readPermission(r io.Reader, name string) (nstree.Permission, error) {
	var p nstree.Permission
	var err error
	if p.User, err = readString(r, name); err != nil {
		return p, err
	}
	if p.Group, err = readString(r, name); err != nil {
		return p, err
	}
	if p.Mode, err = readInt16(r, name); err != nil {
		return p, err
	}
	return p, nil
}
