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

// Package codec implements the bit-exact wire format for a namespace
// checkpoint image: a version-gated prefix, a tree body in one of two
// shapes depending on layout version, and an optional
// files-under-construction trailer. SaveImage and LoadImage are the two
// entry points; everything else in the package is a helper for them.
package codec

import (
	"fmt"
	"io"
	"strings"

	"github.com/nsimage/nsimage/nstree"
	"github.com/nsimage/nsimage/savectx"
)

// Options controls how SaveImage writes an image.
type Options struct {
	LayoutVersion   int32
	NamespaceID     int32
	GenerationStamp int64
	ImageTxId       int64
	Compress        bool
	CodecName       string // defaults to "gzip" if Compress is set and empty.
}

// SaveImage writes snap to w as a complete image: prefix, tree body, and
// (on layouts that carry one) the files-under-construction trailer. ctx is
// polled at each directory's top-level children emission and before
// recursing into each subdirectory, never mid-write.
func SaveImage(w io.Writer, snap nstree.Snapshot, opt Options, ctx *savectx.Context) error {
	if opt.Compress && opt.CodecName == "" {
		opt.CodecName = "gzip"
	}

	total := countNodes(snap.Root())
	prefix := Prefix{
		LayoutVersion:   opt.LayoutVersion,
		NamespaceID:     opt.NamespaceID,
		NumFiles:        total,
		GenerationStamp: opt.GenerationStamp,
		ImageTxId:       opt.ImageTxId,
		Compressed:      opt.Compress,
		CodecName:       opt.CodecName,
	}
	if err := writePrefix(w, prefix); err != nil {
		return fmt.Errorf("codec: writing prefix: %w", err)
	}

	var body io.Writer = w
	var closer io.WriteCloser
	if opt.Compress {
		c, ok := Lookup(opt.CodecName)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownCodec, opt.CodecName)
		}
		cw, err := c.NewWriter(w)
		if err != nil {
			return err
		}
		body, closer = cw, cw
	}

	if usesLocalNameForm(opt.LayoutVersion) {
		if err := writeTreeLocalForm(body, opt.LayoutVersion, snap.Root(), ctx); err != nil {
			return err
		}
	} else {
		if err := writeTreeFullPathForm(body, opt.LayoutVersion, snap.Root(), ctx); err != nil {
			return err
		}
	}

	if hasFilesUnderConstruction(opt.LayoutVersion) {
		if err := writeFilesUnderConstruction(body, opt.LayoutVersion, snap.FilesUnderConstruction()); err != nil {
			return err
		}
	}

	if closer != nil {
		return closer.Close()
	}
	return nil
}

// LoadImage reads an image from r into a fresh in-memory tree, verifying
// that the stream ends exactly where the format says it should (no trailing
// garbage, no truncation).
func LoadImage(r io.Reader, name string, ctx *savectx.Context) (*nstree.MutableSnapshot, Prefix, error) {
	prefix, err := readPrefix(r, name)
	if err != nil {
		return nil, Prefix{}, err
	}

	body := r
	if prefix.Compressed {
		c, ok := Lookup(prefix.CodecName)
		if !ok {
			return nil, Prefix{}, corruptf(name, "%v %q", ErrUnknownCodec, prefix.CodecName)
		}
		cr, err := c.NewReader(r)
		if err != nil {
			return nil, Prefix{}, corruptf(name, "opening %s stream: %v", prefix.CodecName, err)
		}
		defer cr.Close()
		body = cr
	}

	var root *nstree.MutableDirectory
	if usesLocalNameForm(prefix.LayoutVersion) {
		root, err = readTreeLocalForm(body, prefix.LayoutVersion, name, ctx)
	} else {
		root, err = readTreeFullPathForm(body, prefix.LayoutVersion, prefix.NumFiles, name, ctx)
	}
	if err != nil {
		return nil, Prefix{}, err
	}

	var fuc []nstree.FileUnderConstruction
	if hasFilesUnderConstruction(prefix.LayoutVersion) {
		if fuc, err = readFilesUnderConstruction(body, prefix.LayoutVersion, name); err != nil {
			return nil, Prefix{}, err
		}
	}

	// The format declares its own length via numFiles/child counts, so
	// anything still readable here is trailing garbage: a truncated digest
	// footer from a previous aborted write, or a concatenation mistake.
	var probe [1]byte
	if n, _ := body.Read(probe[:]); n != 0 {
		return nil, Prefix{}, corruptf(name, "trailing data after declared content")
	}

	return &nstree.MutableSnapshot{RootVal: root, FUCVal: fuc}, prefix, nil
}

func countNodes(d nstree.Directory) int64 {
	n := int64(1)
	for _, c := range d.Children() {
		if sub, ok := c.(nstree.Directory); ok {
			n += countNodes(sub)
		} else {
			n++
		}
	}
	return n
}

// --- local-name preorder form (layoutVersion <= LayoutLocalNameForm) ---
//
// The root is written like any other node, with a zero-length name: that
// empty string is the signal a reader uses to recognize it as the root
// rather than allocate a child under some other directory. Every other
// node writes its local name immediately before its payload. A directory's
// entry is followed by its child count and then each child in turn; a
// file's entry has no children to follow.

func writeTreeLocalForm(w io.Writer, layoutVersion int32, root nstree.Directory, ctx *savectx.Context) error {
	if err := writeString(w, ""); err != nil {
		return err
	}
	if err := writeInode(w, layoutVersion, dirInode(root.Mtime(), root.NSQuota(), root.DSQuota(), root.Permission())); err != nil {
		return err
	}
	return writeChildrenLocalForm(w, layoutVersion, root, ctx)
}

func writeChildrenLocalForm(w io.Writer, layoutVersion int32, dir nstree.Directory, ctx *savectx.Context) error {
	if err := checkCancelled(ctx); err != nil {
		return err
	}
	children := dir.Children()
	if err := writeInt32(w, int32(len(children))); err != nil {
		return err
	}
	for _, c := range children {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		if err := writeString(w, c.Name()); err != nil {
			return err
		}
		switch n := c.(type) {
		case nstree.Directory:
			if err := writeInode(w, layoutVersion, dirInode(n.Mtime(), n.NSQuota(), n.DSQuota(), n.Permission())); err != nil {
				return err
			}
			if err := writeChildrenLocalForm(w, layoutVersion, n, ctx); err != nil {
				return err
			}
		case nstree.FileNode:
			if err := writeInode(w, layoutVersion, fileInode(n.Mtime(), n.Atime(), n.Replication(), n.PreferredBlockSize(), n.Blocks(), n.Permission())); err != nil {
				return err
			}
		default:
			return fmt.Errorf("codec: node %q is neither Directory nor FileNode", c.Name())
		}
		advance(ctx, 1)
	}
	return nil
}

func readTreeLocalForm(r io.Reader, layoutVersion int32, name string, ctx *savectx.Context) (*nstree.MutableDirectory, error) {
	rootName, err := readString(r, name)
	if err != nil {
		return nil, err
	}
	if rootName != "" {
		return nil, corruptf(name, "root entry has non-empty name %q", rootName)
	}
	in, isDir, err := readInode(r, layoutVersion, name)
	if err != nil {
		return nil, err
	}
	if !isDir {
		return nil, corruptf(name, "root entry is not a directory")
	}
	root := &nstree.MutableDirectory{MtimeVal: in.mtime, NSQuotaVal: in.nsQuota, DSQuotaVal: in.dsQuota, PermissionVal: in.permission}
	if err := readChildrenLocalForm(r, layoutVersion, name, root, ctx); err != nil {
		return nil, err
	}
	return root, nil
}

func readChildrenLocalForm(r io.Reader, layoutVersion int32, name string, dir *nstree.MutableDirectory, ctx *savectx.Context) error {
	if err := checkCancelled(ctx); err != nil {
		return err
	}
	count, err := readInt32(r, name)
	if err != nil {
		return err
	}
	if count < 0 {
		return corruptf(name, "negative child count %d under %q", count, dir.NameVal)
	}
	dir.ChildrenVal = make([]nstree.Node, 0, count)
	for i := int32(0); i < count; i++ {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		childName, err := readString(r, name)
		if err != nil {
			return err
		}
		in, isDir, err := readInode(r, layoutVersion, name)
		if err != nil {
			return err
		}
		if isDir {
			child := &nstree.MutableDirectory{NameVal: childName, MtimeVal: in.mtime, NSQuotaVal: in.nsQuota, DSQuotaVal: in.dsQuota, PermissionVal: in.permission}
			if err := readChildrenLocalForm(r, layoutVersion, name, child, ctx); err != nil {
				return err
			}
			dir.ChildrenVal = append(dir.ChildrenVal, child)
		} else {
			file := &nstree.MutableFile{
				NameVal: childName, MtimeVal: in.mtime, AtimeVal: in.atime,
				ReplicationVal: in.replication, PreferredBlockSizeVal: in.preferredBlockSize,
				BlocksVal: in.blocks, PermissionVal: in.permission,
			}
			dir.ChildrenVal = append(dir.ChildrenVal, file)
		}
		advance(ctx, 1)
	}
	return nil
}

// --- full-path form (older layouts) ---
//
// Nodes are flattened into a preorder list, each entry carrying its full
// slash-joined path rather than relying on nesting in the stream. The
// decoder reattaches each entry under its parent by looking the parent path
// up in a map built incrementally as entries arrive; a path whose parent
// hasn't been seen yet is a corrupt stream (entries always precede their
// descendants in a preorder walk, so this can only happen if the stream is
// malformed).

func writeTreeFullPathForm(w io.Writer, layoutVersion int32, root nstree.Directory, ctx *savectx.Context) error {
	return writeFullPathEntry(w, layoutVersion, "", root, ctx)
}

func writeFullPathEntry(w io.Writer, layoutVersion int32, path string, node nstree.Node, ctx *savectx.Context) error {
	if err := checkCancelled(ctx); err != nil {
		return err
	}
	if err := writeString(w, path); err != nil {
		return err
	}
	switch n := node.(type) {
	case nstree.Directory:
		if err := writeInode(w, layoutVersion, dirInode(n.Mtime(), n.NSQuota(), n.DSQuota(), n.Permission())); err != nil {
			return err
		}
		advance(ctx, 1)
		for _, c := range n.Children() {
			childPath := c.Name()
			if path != "" {
				childPath = path + "/" + c.Name()
			}
			if err := writeFullPathEntry(w, layoutVersion, childPath, c, ctx); err != nil {
				return err
			}
		}
		return nil
	case nstree.FileNode:
		err := writeInode(w, layoutVersion, fileInode(n.Mtime(), n.Atime(), n.Replication(), n.PreferredBlockSize(), n.Blocks(), n.Permission()))
		advance(ctx, 1)
		return err
	default:
		return fmt.Errorf("codec: node %q is neither Directory nor FileNode", node.Name())
	}
}

func readTreeFullPathForm(r io.Reader, layoutVersion int32, numFiles int64, name string, ctx *savectx.Context) (*nstree.MutableDirectory, error) {
	byPath := map[string]nstree.Node{}
	var root *nstree.MutableDirectory

	for i := int64(0); i < numFiles; i++ {
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		path, err := readString(r, name)
		if err != nil {
			return nil, err
		}
		in, isDir, err := readInode(r, layoutVersion, name)
		if err != nil {
			return nil, err
		}

		localName := path
		if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
			localName = path[idx+1:]
		}

		var node nstree.Node
		if isDir {
			d := &nstree.MutableDirectory{NameVal: localName, MtimeVal: in.mtime, NSQuotaVal: in.nsQuota, DSQuotaVal: in.dsQuota, PermissionVal: in.permission}
			node = d
			if path == "" {
				root = d
			}
		} else {
			node = &nstree.MutableFile{
				NameVal: localName, MtimeVal: in.mtime, AtimeVal: in.atime,
				ReplicationVal: in.replication, PreferredBlockSizeVal: in.preferredBlockSize,
				BlocksVal: in.blocks, PermissionVal: in.permission,
			}
		}
		byPath[path] = node

		if path != "" {
			idx := strings.LastIndexByte(path, '/')
			parentPath := ""
			if idx >= 0 {
				parentPath = path[:idx]
			}
			parent, ok := byPath[parentPath]
			if !ok {
				return nil, corruptf(name, "parent %q not found for entry %q", parentPath, path)
			}
			pd, ok := parent.(*nstree.MutableDirectory)
			if !ok {
				return nil, corruptf(name, "parent %q of entry %q is not a directory", parentPath, path)
			}
			pd.ChildrenVal = append(pd.ChildrenVal, node)
		}
		advance(ctx, 1)
	}

	if root == nil {
		return nil, corruptf(name, "stream contained no root entry")
	}
	return root, nil
}
