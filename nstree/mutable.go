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

package nstree

// MutableFile is a concrete FileNode a codec decodes into, or a test builds
// to encode.
type MutableFile struct {
	NameVal               string
	MtimeVal              int64
	AtimeVal              int64
	PermissionVal         Permission
	ReplicationVal        int16
	PreferredBlockSizeVal int64
	BlocksVal             []Block
}

func (f *MutableFile) Name() string             { return f.NameVal }
func (f *MutableFile) Mtime() int64             { return f.MtimeVal }
func (f *MutableFile) Permission() Permission   { return f.PermissionVal }
func (f *MutableFile) Replication() int16       { return f.ReplicationVal }
func (f *MutableFile) Atime() int64             { return f.AtimeVal }
func (f *MutableFile) PreferredBlockSize() int64 { return f.PreferredBlockSizeVal }
func (f *MutableFile) Blocks() []Block          { return f.BlocksVal }

// MutableDirectory is a concrete Directory a codec decodes into, or a test
// builds to encode.
type MutableDirectory struct {
	NameVal       string
	MtimeVal      int64
	PermissionVal Permission
	NSQuotaVal    int64
	DSQuotaVal    int64
	ChildrenVal   []Node
}

func (d *MutableDirectory) Name() string           { return d.NameVal }
func (d *MutableDirectory) Mtime() int64           { return d.MtimeVal }
func (d *MutableDirectory) Permission() Permission { return d.PermissionVal }
func (d *MutableDirectory) Children() []Node       { return d.ChildrenVal }
func (d *MutableDirectory) NSQuota() int64         { return d.NSQuotaVal }
func (d *MutableDirectory) DSQuota() int64         { return d.DSQuotaVal }

// MutableSnapshot is a concrete Snapshot a codec decodes into, or a test
// builds to encode.
type MutableSnapshot struct {
	RootVal Directory
	FUCVal  []FileUnderConstruction
}

func (s *MutableSnapshot) Root() Directory                        { return s.RootVal }
func (s *MutableSnapshot) FilesUnderConstruction() []FileUnderConstruction { return s.FUCVal }

var (
	_ Directory = (*MutableDirectory)(nil)
	_ FileNode  = (*MutableFile)(nil)
	_ Snapshot  = (*MutableSnapshot)(nil)
)
