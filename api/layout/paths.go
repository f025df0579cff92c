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

// Package layout names the files and staging directories that make up a
// storage directory's on-disk layout, and computes paths within it. It has
// no filesystem side effects; it is pure path arithmetic so that it can be
// shared by the storage, codec, and cmd/nsimageinspect packages without
// pulling in I/O.
package layout

import "path/filepath"

// Leaf names inside a storage directory's current/ slot.
const (
	Image           = "fsimage"
	ImageCheckpoint = "fsimage.ckpt"
	Edits           = "edits"
	EditsNew        = "edits.new"
	FsTime          = "fstime"
	VersionFile     = "VERSION"
)

// Top-level slot names inside a storage directory's root.
const (
	Current            = "current"
	Previous           = "previous"
	LastCheckpointTemp = "lastcheckpoint.tmp"
	PreviousCheckpoint = "previous.checkpoint"
	RemovedTemp        = "removed.tmp"
	PreviousTemp       = "previous.tmp"
	FinalizedTemp      = "finalized.tmp"
)

// CurrentDir returns root/current.
func CurrentDir(root string) string { return filepath.Join(root, Current) }

// PreviousDir returns root/previous.
func PreviousDir(root string) string { return filepath.Join(root, Previous) }

// LastCheckpointTempDir returns root/lastcheckpoint.tmp.
func LastCheckpointTempDir(root string) string { return filepath.Join(root, LastCheckpointTemp) }

// PreviousCheckpointDir returns root/previous.checkpoint.
func PreviousCheckpointDir(root string) string { return filepath.Join(root, PreviousCheckpoint) }

// RemovedTempDir returns root/removed.tmp.
func RemovedTempDir(root string) string { return filepath.Join(root, RemovedTemp) }

// PreviousTempDir returns root/previous.tmp.
func PreviousTempDir(root string) string { return filepath.Join(root, PreviousTemp) }

// FinalizedTempDir returns root/finalized.tmp.
func FinalizedTempDir(root string) string { return filepath.Join(root, FinalizedTemp) }

// ImagePath returns root/current/fsimage.
func ImagePath(root string) string { return filepath.Join(CurrentDir(root), Image) }

// ImageCheckpointPath returns root/current/fsimage.ckpt.
func ImageCheckpointPath(root string) string { return filepath.Join(CurrentDir(root), ImageCheckpoint) }

// EditsPath returns root/current/edits.
func EditsPath(root string) string { return filepath.Join(CurrentDir(root), Edits) }

// EditsNewPath returns root/current/edits.new.
func EditsNewPath(root string) string { return filepath.Join(CurrentDir(root), EditsNew) }

// FsTimePath returns root/current/fstime.
func FsTimePath(root string) string { return filepath.Join(CurrentDir(root), FsTime) }

// VersionPath returns root/current/VERSION.
func VersionPath(root string) string { return filepath.Join(CurrentDir(root), VersionFile) }
