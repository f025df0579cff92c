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
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/nsimage/nsimage/digest"
	"github.com/nsimage/nsimage/storage"
)

// CheckpointSignature identifies one round of the upload+roll protocol: the
// namespace identity the uploading actor must match, plus the edits file's
// modification time at the moment it was sealed, which the uploader
// includes so RollFSImage can detect a concurrent, conflicting roll.
type CheckpointSignature struct {
	NamespaceID   int32
	LayoutVersion int32
	CTime         int64
	FsTime        int64
	EditsMtime    int64
}

func (e *Engine) signature() CheckpointSignature {
	return CheckpointSignature{
		NamespaceID:   e.namespaceID,
		LayoutVersion: e.layoutVersion,
		CTime:         e.cTime,
		FsTime:        e.fsTime,
	}
}

// RollEditLog seals the active edits file and opens a fresh edits.new on
// every EDITS directory, for a secondary actor beginning a merge. It
// returns the CheckpointSignature the actor must present back to
// ValidateCheckpointUpload and, eventually, RollFSImage.
func (e *Engine) RollEditLog() (CheckpointSignature, error) {
	if e.checkpointState != StateStart {
		return CheckpointSignature{}, fmt.Errorf("%w: RollEditLog called in state %d", ErrProtocolOrdering, e.checkpointState)
	}

	editsDirs := e.set.EditsDirs()
	var editsMtime int64
	for _, d := range editsDirs {
		if t, err := d.EditsMtime(); err == nil {
			editsMtime = t
			break
		}
	}

	if err := e.journal.RollEditLog(); err != nil {
		return CheckpointSignature{}, fmt.Errorf("rolling edit log: %w", err)
	}
	for _, d := range editsDirs {
		if err := e.journal.CreateEditLogFile(d.EditsNewPath()); err != nil {
			klog.Warningf("creating edits.new on %s failed, evicting: %v", d.Path, err)
			if evErr := e.set.Evict(d, storage.EvictIOError); evErr != nil {
				return CheckpointSignature{}, evErr
			}
		}
	}

	sig := e.signature()
	sig.EditsMtime = editsMtime
	e.checkpointState = StateRolledEdits
	e.pendingSig = &sig
	return sig, nil
}

// ValidateCheckpointUpload checks an uploading actor's signature against
// the state RollEditLog handed out, before the actor is allowed to begin
// streaming fsimage.ckpt to the IMAGE directories.
func (e *Engine) ValidateCheckpointUpload(sig CheckpointSignature) error {
	if e.checkpointState != StateRolledEdits || e.pendingSig == nil {
		return fmt.Errorf("%w: ValidateCheckpointUpload called in state %d", ErrProtocolOrdering, e.checkpointState)
	}
	if sig != *e.pendingSig {
		return fmt.Errorf("%w: checkpoint signature %+v does not match expected %+v", ErrProtocolOrdering, sig, *e.pendingSig)
	}
	e.checkpointState = StateUploadStart
	return nil
}

// CheckpointUploadDone is called once the uploading actor has finished
// streaming fsimage.ckpt to every IMAGE directory, with the digest it
// accumulated while doing so. The digest is recorded for RollFSImage to
// write into VERSION; it is not independently re-verified here since the
// actor streamed the bytes itself and is the sole source of this digest.
func (e *Engine) CheckpointUploadDone(uploaded digest.ImageDigest) error {
	if e.checkpointState != StateUploadStart {
		return fmt.Errorf("%w: CheckpointUploadDone called in state %d", ErrProtocolOrdering, e.checkpointState)
	}
	e.imageDigest = uploaded
	e.checkpointState = StateUploadDone
	return nil
}

// RollFSImage completes the upload+roll protocol: it promotes
// fsimage.ckpt to fsimage on every IMAGE directory, purges edits.new to
// edits on every EDITS directory, writes VERSION and fstime everywhere, and
// removes any stale per-role artifact left by a directory whose role
// changed. At least one IMAGE directory must survive or the whole operation
// fails.
func (e *Engine) RollFSImage(sig CheckpointSignature) error {
	if e.checkpointState != StateUploadDone || e.pendingSig == nil {
		return fmt.Errorf("%w: RollFSImage called in state %d", ErrProtocolOrdering, e.checkpointState)
	}
	if sig != *e.pendingSig {
		return fmt.Errorf("%w: checkpoint signature %+v does not match expected %+v", ErrProtocolOrdering, sig, *e.pendingSig)
	}

	survivors := 0
	for _, d := range e.set.ImageDirs() {
		if err := d.PromoteCheckpointImage(); err != nil {
			klog.Warningf("promoting checkpoint image on %s failed, evicting: %v", d.Path, err)
			if evErr := e.set.Evict(d, storage.EvictIOError); evErr != nil && survivors == 0 {
				return evErr
			}
			continue
		}
		survivors++
	}
	if survivors == 0 {
		return fmt.Errorf("%w: every IMAGE directory failed to roll", storage.ErrActiveSetDepleted)
	}

	for _, d := range e.set.EditsDirs() {
		if err := d.PromoteEditsNew(); err != nil {
			klog.Warningf("purging edit log on %s failed, evicting: %v", d.Path, err)
			if evErr := e.set.Evict(d, storage.EvictIOError); evErr != nil {
				return evErr
			}
		}
	}

	newFsTime := time.Now().UnixNano()
	if newFsTime <= e.fsTime {
		newFsTime = e.fsTime + 1
	}
	v := storage.Version{Info: storage.Info{LayoutVersion: e.layoutVersion, NamespaceID: e.namespaceID, CTime: e.cTime}}
	if v.DigestRequired() {
		v.ImageMD5Digest = e.imageDigest.String()
	}
	for _, d := range e.set.Active() {
		if !d.Role.IsImage() {
			if err := d.RemoveImage(); err != nil {
				klog.Warningf("removing stale image on %s: %v", d.Path, err)
			}
		}
		if !d.Role.IsEdits() {
			if err := d.RemoveEdits(); err != nil {
				klog.Warningf("removing stale edits on %s: %v", d.Path, err)
			}
		}
		if err := d.WriteFsTime(newFsTime); err != nil {
			return fmt.Errorf("writing fstime to %s: %w", d.Path, err)
		}
		if err := d.WriteVersion(v); err != nil {
			return fmt.Errorf("writing VERSION to %s: %w", d.Path, err)
		}
	}

	e.fsTime = newFsTime
	e.checkpointState = StateStart
	e.pendingSig = nil
	return nil
}
