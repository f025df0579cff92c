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

// Package nsimage is the public facade of the persistent namespace
// checkpoint engine: it owns the storage directories, drives the
// save/roll/upgrade protocols, and reads the namespace tree through the
// interfaces below. The namespace tree, the edit journal, and the
// distributed-upgrade policy are all external collaborators — this package
// only ever calls through to them.
package nsimage

import (
	"io"

	"github.com/nsimage/nsimage/nstree"
)

// NamespaceSnapshot is the read-only namespace tree a save is taken from.
// It is aliased from nstree so callers outside this module never need to
// import that package directly.
type NamespaceSnapshot = nstree.Snapshot

// Node, Directory, FileNode, Block, and Permission mirror nstree's tree
// vocabulary for callers that only need the public facade.
type (
	Node       = nstree.Node
	Directory  = nstree.Directory
	FileNode   = nstree.FileNode
	Block      = nstree.Block
	Permission = nstree.Permission
)

// EditJournal is the append-only edit log collaborator. SaveNamespace
// closes it for writes before staging a checkpoint and reopens it on
// success; RollEditLog and the upload protocol drive it directly.
type EditJournal interface {
	Open() error
	Close() error
	CreateEditLogFile(path string) error
	LoadFSEdits(r io.Reader) (int64, error)
	RollEditLog() error
	PurgeEditLog() error
	ExistsNew() bool
	LastWrittenTxId() int64
	SetStartTransactionId(txId int64)
	AdjustReplication(r int16) int16
	ProcessIOError(dir string)
}

// UpgradeManager reports and advances distributed-upgrade state. The
// reference implementation lives in internal/upgrade; production
// deployments may supply their own.
type UpgradeManager interface {
	UpgradeState() (pending bool, err error)
	UpgradeVersion() (int32, error)
	InitializeUpgrade() (bool, error)
}
