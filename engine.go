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

package nsimage

import (
	"github.com/nsimage/nsimage/digest"
	"github.com/nsimage/nsimage/storage"
)

// CheckpointState tracks progress through the upload+roll protocol driven
// by a secondary merge actor (RollEditLog / ValidateCheckpointUpload /
// CheckpointUploadDone / RollFSImage). SaveNamespace does not step through
// it: a direct save completes start to finish under one call and leaves the
// state at StateStart.
type CheckpointState int

const (
	// StateStart is the resting state: no checkpoint upload in progress.
	StateStart CheckpointState = iota
	// StateRolledEdits means RollEditLog has sealed the edit stream and
	// handed out a CheckpointSignature.
	StateRolledEdits
	// StateUploadStart means ValidateCheckpointUpload accepted a signature
	// and fsimage.ckpt is being populated by the uploading actor.
	StateUploadStart
	// StateUploadDone means CheckpointUploadDone recorded the uploaded
	// image's digest; RollFSImage is now expected.
	StateUploadDone
)

// Engine owns a namespace's storage directories and drives the
// save/roll/upgrade protocols against them. Engine is not safe for
// concurrent use: per spec, callers serialize SaveNamespace, RollEditLog,
// ValidateCheckpointUpload, CheckpointUploadDone, RollFSImage, Upgrade,
// Rollback, and Finalize through a single lock of their own; Engine never
// re-enters that lock internally.
type Engine struct {
	cfg        Config
	set        *storage.Set
	journal    EditJournal
	upgradeMgr UpgradeManager

	namespaceID     int32
	layoutVersion   int32
	cTime           int64
	generationStamp int64
	fsTime          int64
	imageDigest     digest.ImageDigest

	checkpointState CheckpointState
	pendingSig      *CheckpointSignature
}

// NewEngine constructs an Engine over an already-built storage.Set. Callers
// must call Start before any other method.
func NewEngine(cfg Config, set *storage.Set, journal EditJournal, upgradeMgr UpgradeManager) *Engine {
	return &Engine{cfg: cfg, set: set, journal: journal, upgradeMgr: upgradeMgr}
}

// NamespaceID returns the namespace identifier recorded across this
// engine's storage directories, read from VERSION at Start or by Rollback.
// Upgrade keeps the namespace identifier unchanged.
func (e *Engine) NamespaceID() int32 { return e.namespaceID }

// LayoutVersion returns the layout version currently recorded on disk.
func (e *Engine) LayoutVersion() int32 { return e.layoutVersion }

// SetGenerationStamp records the block generation stamp counter to embed in
// the next image prefix written. The namespace's block manager owns this
// counter; Engine only carries it through to the wire format.
func (e *Engine) SetGenerationStamp(gs int64) { e.generationStamp = gs }
