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
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/nsimage/nsimage/nstree"
)

func sampleTree() *nstree.MutableSnapshot {
	root := &nstree.MutableDirectory{
		MtimeVal:      100,
		PermissionVal: nstree.Permission{User: "hdfs", Group: "supergroup", Mode: 0755},
		NSQuotaVal:    -1,
		DSQuotaVal:    -1,
		ChildrenVal: []nstree.Node{
			&nstree.MutableDirectory{
				NameVal:       "tmp",
				MtimeVal:      200,
				PermissionVal: nstree.Permission{User: "hdfs", Group: "supergroup", Mode: 01777},
				NSQuotaVal:    -1,
				DSQuotaVal:    -1,
				ChildrenVal: []nstree.Node{
					&nstree.MutableFile{
						NameVal:               "a.txt",
						MtimeVal:              300,
						AtimeVal:              301,
						PermissionVal:         nstree.Permission{User: "alice", Group: "users", Mode: 0644},
						ReplicationVal:        3,
						PreferredBlockSizeVal: 134217728,
						BlocksVal: []nstree.Block{
							{BlockID: 1001, NumBytes: 512, GenerationStamp: 7},
							{BlockID: 1002, NumBytes: 256, GenerationStamp: 7},
						},
					},
				},
			},
			&nstree.MutableFile{
				NameVal:               "empty.txt",
				MtimeVal:              150,
				PermissionVal:         nstree.Permission{User: "bob", Group: "users", Mode: 0600},
				ReplicationVal:        1,
				PreferredBlockSizeVal: 67108864,
			},
		},
	}
	return &nstree.MutableSnapshot{
		RootVal: root,
		FUCVal: []nstree.FileUnderConstruction{
			{
				Path: "tmp/open.txt", Replication: 3, Mtime: 400, PreferredBlockSize: 134217728,
				Permission:    nstree.Permission{User: "carol", Group: "users", Mode: 0644},
				ClientName:    "DFSClient_NONMAPREDUCE_1",
				ClientMachine: "10.0.0.1",
			},
		},
	}
}

var cmpOpts = []cmp.Option{
	cmpopts.EquateEmpty(),
}

func TestRoundTripLocalNameForm(t *testing.T) {
	snap := sampleTree()
	opt := Options{LayoutVersion: LayoutCurrent, NamespaceID: 42, GenerationStamp: 7, ImageTxId: 99}

	var buf bytes.Buffer
	if err := SaveImage(&buf, snap, opt, nil); err != nil {
		t.Fatalf("SaveImage: %v", err)
	}

	got, prefix, err := LoadImage(&buf, "test-image", nil)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	if prefix.NumFiles != 4 {
		t.Errorf("NumFiles = %d, want 4", prefix.NumFiles)
	}
	if diff := cmp.Diff(snap.RootVal, got.Root(), cmpOpts...); diff != "" {
		t.Errorf("round trip tree mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(snap.FilesUnderConstruction(), got.FilesUnderConstruction(), cmpOpts...); diff != "" {
		t.Errorf("round trip files-under-construction mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTripFullPathForm(t *testing.T) {
	snap := sampleTree()
	// A layout newer than LayoutFilesUnderConstruction (-13) but older than
	// LayoutLocalNameForm (-19) exercises the full-path body with the
	// files-under-construction trailer still present; at or past LayoutAtime
	// (-17) it also carries the access times sampleTree sets.
	opt := Options{LayoutVersion: -18, NamespaceID: 7, GenerationStamp: 3}

	var buf bytes.Buffer
	if err := SaveImage(&buf, snap, opt, nil); err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	got, _, err := LoadImage(&buf, "test-image", nil)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	if diff := cmp.Diff(snap.RootVal, got.Root(), cmpOpts...); diff != "" {
		t.Errorf("round trip tree mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTripCompressed(t *testing.T) {
	snap := sampleTree()
	opt := Options{LayoutVersion: LayoutCurrent, NamespaceID: 1, Compress: true}

	var buf bytes.Buffer
	if err := SaveImage(&buf, snap, opt, nil); err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	got, prefix, err := LoadImage(&buf, "test-image", nil)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	if !prefix.Compressed || prefix.CodecName != "gzip" {
		t.Errorf("prefix = %+v, want Compressed gzip", prefix)
	}
	if diff := cmp.Diff(snap.RootVal, got.Root(), cmpOpts...); diff != "" {
		t.Errorf("round trip tree mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadImageRejectsUnknownCodec(t *testing.T) {
	var buf bytes.Buffer
	if err := writePrefix(&buf, Prefix{LayoutVersion: LayoutCurrent, Compressed: true, CodecName: "lz4"}); err != nil {
		t.Fatal(err)
	}
	_, _, err := LoadImage(&buf, "bad-codec", nil)
	if !errors.Is(err, ErrCorruptImage) {
		t.Fatalf("LoadImage error = %v, want wrapping ErrCorruptImage", err)
	}
}

func TestLoadImageRejectsTruncatedStream(t *testing.T) {
	snap := sampleTree()
	opt := Options{LayoutVersion: LayoutCurrent, NamespaceID: 1}
	var buf bytes.Buffer
	if err := SaveImage(&buf, snap, opt, nil); err != nil {
		t.Fatal(err)
	}
	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-4])
	_, _, err := LoadImage(truncated, "truncated", nil)
	if !errors.Is(err, ErrCorruptImage) {
		t.Fatalf("LoadImage error = %v, want wrapping ErrCorruptImage", err)
	}
}

func TestLoadImageRejectsTrailingGarbage(t *testing.T) {
	snap := sampleTree()
	opt := Options{LayoutVersion: LayoutCurrent, NamespaceID: 1}
	var buf bytes.Buffer
	if err := SaveImage(&buf, snap, opt, nil); err != nil {
		t.Fatal(err)
	}
	buf.Write([]byte{0xde, 0xad, 0xbe, 0xef})
	_, _, err := LoadImage(&buf, "trailing", nil)
	if !errors.Is(err, ErrCorruptImage) {
		t.Fatalf("LoadImage error = %v, want wrapping ErrCorruptImage", err)
	}
}

func TestLoadImageRejectsParentNotFound(t *testing.T) {
	// Hand-craft a full-path-form stream whose second entry's parent was
	// never emitted.
	var buf bytes.Buffer
	if err := writePrefix(&buf, Prefix{LayoutVersion: -14, NamespaceID: 1, NumFiles: 2}); err != nil {
		t.Fatal(err)
	}
	if err := writeString(&buf, ""); err != nil {
		t.Fatal(err)
	}
	if err := writeInode(&buf, -14, dirInode(1, -1, -1, nstree.Permission{})); err != nil {
		t.Fatal(err)
	}
	if err := writeString(&buf, "orphan/child.txt"); err != nil {
		t.Fatal(err)
	}
	if err := writeInode(&buf, -14, fileInode(1, 1, 1, 1, nil, nstree.Permission{})); err != nil {
		t.Fatal(err)
	}
	_, _, err := LoadImage(&buf, "orphan", nil)
	if !errors.Is(err, ErrCorruptImage) {
		t.Fatalf("LoadImage error = %v, want wrapping ErrCorruptImage", err)
	}
}

func TestEmptyTreeRoundTrip(t *testing.T) {
	snap := &nstree.MutableSnapshot{RootVal: &nstree.MutableDirectory{NSQuotaVal: -1, DSQuotaVal: -1}}
	opt := Options{LayoutVersion: LayoutCurrent, NamespaceID: 1}
	var buf bytes.Buffer
	if err := SaveImage(&buf, snap, opt, nil); err != nil {
		t.Fatal(err)
	}
	got, prefix, err := LoadImage(&buf, "empty", nil)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	if prefix.NumFiles != 1 {
		t.Errorf("NumFiles = %d, want 1 (root only)", prefix.NumFiles)
	}
	if len(got.Root().Children()) != 0 {
		t.Errorf("Children = %v, want none", got.Root().Children())
	}
}

func TestRoundTripPrePermissionsLayoutSubstitutesDefault(t *testing.T) {
	snap := sampleTree()
	// -8 (LayoutPreferredBlockSize) is older than LayoutPermissions (-11), so
	// no permissionStatus is written for any node; every loaded node should
	// carry defaultUpgradePermission instead of whatever sampleTree set.
	opt := Options{LayoutVersion: -8, NamespaceID: 1}

	var buf bytes.Buffer
	if err := SaveImage(&buf, snap, opt, nil); err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	got, _, err := LoadImage(&buf, "test-image", nil)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	if diff := cmp.Diff(defaultUpgradePermission, got.Root().Permission()); diff != "" {
		t.Errorf("root permission (-want +got):\n%s", diff)
	}
	tmp := got.Root().Children()[0]
	if diff := cmp.Diff(defaultUpgradePermission, tmp.Permission()); diff != "" {
		t.Errorf("tmp permission (-want +got):\n%s", diff)
	}
}
