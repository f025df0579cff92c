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

package storage

import (
	"fmt"
	"os"
)

// StageForCheckpoint begins a saveNamespace transaction on this directory:
// the existing current/ is renamed out of the way and a fresh, empty one
// takes its place. Recovery rule two restores lastcheckpoint.tmp if the
// process dies before the fresh current/ exists; once it exists, start-up
// reports the directory as ErrInconsistentState.
func (d *Directory) StageForCheckpoint() error {
	if err := renameReplace(d.currentDir(), d.lastCheckpointTempDir()); err != nil {
		return fmt.Errorf("stage %s: %w", d.Path, err)
	}
	return d.format()
}

// RestoreFromCheckpointTemp reverses StageForCheckpoint: used on the
// cancellation fence. The recovery path renames lastcheckpoint.tmp itself.
func (d *Directory) RestoreFromCheckpointTemp() error {
	if err := removeBestEffort(d.currentDir()); err != nil {
		return err
	}
	return renameReplace(d.lastCheckpointTempDir(), d.currentDir())
}

// RetireCheckpoint completes a saveNamespace transaction: the previously
// retained checkpoint is discarded and the one just staged away becomes the
// new retained checkpoint.
func (d *Directory) RetireCheckpoint() error {
	if err := removeBestEffort(d.previousCheckpointDir()); err != nil {
		return fmt.Errorf("retire %s: %w", d.Path, err)
	}
	return renameReplace(d.lastCheckpointTempDir(), d.previousCheckpointDir())
}

// StageForUpgrade begins an upgrade transaction: current/ is preserved
// under previous.tmp and a fresh, empty current/ takes its place.
func (d *Directory) StageForUpgrade() error {
	if err := renameReplace(d.currentDir(), d.previousTempDir()); err != nil {
		return fmt.Errorf("stage upgrade %s: %w", d.Path, err)
	}
	return d.format()
}

// FinishUpgrade completes an upgrade transaction, making the preserved
// pre-upgrade state available as previous/.
func (d *Directory) FinishUpgrade() error {
	return renameReplace(d.previousTempDir(), d.previousDir())
}

// HasPrevious reports whether this directory retains a previous/ layout
// from an upgrade not yet finalized.
func (d *Directory) HasPrevious() bool { return exists(d.previousDir()) }

// Rollback reverts this directory to its pre-upgrade state if it has one;
// it is a no-op (returning false) for a directory with no previous/.
func (d *Directory) Rollback() (bool, error) {
	if !d.HasPrevious() {
		return false, nil
	}
	if err := renameReplace(d.currentDir(), d.removedTempDir()); err != nil {
		return false, fmt.Errorf("rollback %s: %w", d.Path, err)
	}
	if err := renameReplace(d.previousDir(), d.currentDir()); err != nil {
		return false, fmt.Errorf("rollback %s: %w", d.Path, err)
	}
	if err := removeBestEffort(d.removedTempDir()); err != nil {
		return false, fmt.Errorf("rollback %s: cleaning up: %w", d.Path, err)
	}
	return true, nil
}

// Finalize discards this directory's previous/ layout permanently.
// Idempotent: calling it again when previous/ is already gone succeeds
// silently.
func (d *Directory) Finalize() error {
	if !d.HasPrevious() {
		return nil
	}
	if err := renameReplace(d.previousDir(), d.finalizedTempDir()); err != nil {
		return fmt.Errorf("finalize %s: %w", d.Path, err)
	}
	return removeBestEffort(d.finalizedTempDir())
}

// PromoteCheckpointImage renames current/fsimage.ckpt to current/fsimage,
// the final step of the upload+roll protocol for an IMAGE directory.
func (d *Directory) PromoteCheckpointImage() error {
	return renameReplace(d.CheckpointImagePath(), d.ImagePath())
}

// HasCheckpointImage reports whether current/fsimage.ckpt exists.
func (d *Directory) HasCheckpointImage() bool { return exists(d.CheckpointImagePath()) }

// RemoveCheckpointImage deletes current/fsimage.ckpt, used when an
// interrupted upload must be discarded.
func (d *Directory) RemoveCheckpointImage() error {
	return removeBestEffort(d.CheckpointImagePath())
}

// EditsNewExists reports whether current/edits.new exists.
func (d *Directory) EditsNewExists() bool { return exists(d.EditsNewPath()) }

// PromoteEditsNew renames current/edits.new to current/edits, completing
// purgeEditLog for an EDITS directory.
func (d *Directory) PromoteEditsNew() error {
	return renameReplace(d.EditsNewPath(), d.EditsPath())
}

// RemoveImage deletes current/fsimage, used to clean a stale image left on
// a directory whose role no longer includes IMAGE.
func (d *Directory) RemoveImage() error { return removeBestEffort(d.ImagePath()) }

// RemoveEdits deletes current/edits, used to clean a stale edits file left
// on a directory whose role no longer includes EDITS.
func (d *Directory) RemoveEdits() error { return removeBestEffort(d.EditsPath()) }

// EditsMtime returns the last-modified time of current/edits, in Unix
// nanoseconds, for use in a CheckpointSignature.
func (d *Directory) EditsMtime() (int64, error) {
	fi, err := os.Stat(d.EditsPath())
	if err != nil {
		return 0, err
	}
	return fi.ModTime().UnixNano(), nil
}

// HasValidVersion reports whether this directory classifies as
// StateNormal, i.e. has a well-formed current/VERSION.
func (d *Directory) HasValidVersion() bool {
	state, err := d.classify()
	return err == nil && state == StateNormal
}
