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
	"os"
	"time"

	"k8s.io/klog/v2"

	"github.com/nsimage/nsimage/api/layout"
	"github.com/nsimage/nsimage/codec"
	"github.com/nsimage/nsimage/savectx"
	"github.com/nsimage/nsimage/storage"
)

// Upgrade moves every storage directory onto newLayoutVersion: the current
// layout is preserved as previous/ and a fresh image is written at the new
// version. It fails if any directory already has a previous/ from an
// unfinalized upgrade.
func (e *Engine) Upgrade(snap NamespaceSnapshot, newLayoutVersion int32, txId int64, ctx *savectx.Context) error {
	for _, d := range e.set.Active() {
		if d.HasPrevious() {
			return fmt.Errorf("%w: %s already has an unfinalized upgrade", ErrUpgradeInProgress, d.Path)
		}
	}
	if ctx == nil {
		ctx = savectx.New(txId, 0)
	}

	active := e.set.Active()
	staged := make([]*storage.Directory, 0, len(active))
	for _, d := range active {
		if err := d.StageForUpgrade(); err != nil {
			return fmt.Errorf("staging upgrade on %s: %w", d.Path, err)
		}
		staged = append(staged, d)
	}

	prevLayout, prevCTime := e.layoutVersion, e.cTime
	e.layoutVersion = newLayoutVersion
	e.cTime = time.Now().UnixNano()

	newDigest, err := e.writeImages(snap, txId, ctx)
	if err != nil {
		e.layoutVersion, e.cTime = prevLayout, prevCTime
		for _, d := range staged {
			if rerr := renameUpgradeBack(d); rerr != nil {
				klog.Errorf("reverting upgrade staging on %s: %v", d.Path, rerr)
			}
		}
		return err
	}
	if err := e.writeEmptyEdits(); err != nil {
		return fmt.Errorf("writing empty edits during upgrade: %w", err)
	}

	newFsTime := time.Now().UnixNano()
	v := storage.Version{Info: storage.Info{LayoutVersion: e.layoutVersion, NamespaceID: e.namespaceID, CTime: e.cTime}}
	if v.DigestRequired() {
		v.ImageMD5Digest = newDigest.String()
	}
	for _, d := range e.set.Active() {
		if err := d.WriteFsTime(newFsTime); err != nil {
			return fmt.Errorf("writing fstime to %s: %w", d.Path, err)
		}
		if err := d.WriteVersion(v); err != nil {
			return fmt.Errorf("writing VERSION to %s: %w", d.Path, err)
		}
	}
	for _, d := range staged {
		if err := d.FinishUpgrade(); err != nil {
			return fmt.Errorf("finishing upgrade on %s: %w", d.Path, err)
		}
	}

	e.imageDigest = newDigest
	e.fsTime = newFsTime
	if e.upgradeMgr != nil {
		if _, err := e.upgradeMgr.InitializeUpgrade(); err != nil {
			klog.Warningf("initializing distributed upgrade bookkeeping: %v", err)
		}
	}
	return nil
}

// renameUpgradeBack reverses StageForUpgrade when the new image fails to
// write: the preserved pre-upgrade content is moved back into current/.
func renameUpgradeBack(d *storage.Directory) error {
	if err := os.RemoveAll(d.CurrentDir()); err != nil {
		return err
	}
	return os.Rename(layout.PreviousTempDir(d.Path), d.CurrentDir())
}

// Rollback reverts every directory that still carries a previous/ layout
// from an un-finalized upgrade back to it; directories without one are left
// untouched. It fails if no directory had a previous/ to revert to.
func (e *Engine) Rollback() error {
	reverted := 0
	var lastVersion storage.Version
	for _, d := range e.set.Active() {
		ok, err := d.Rollback()
		if err != nil {
			return fmt.Errorf("rolling back %s: %w", d.Path, err)
		}
		if !ok {
			continue
		}
		reverted++
		if v, err := d.ReadVersion(); err == nil {
			lastVersion = v
		}
	}
	if reverted == 0 {
		return fmt.Errorf("%w: no storage directory has an unfinalized upgrade to roll back", ErrProtocolOrdering)
	}
	e.namespaceID, e.layoutVersion, e.cTime = lastVersion.NamespaceID, lastVersion.LayoutVersion, lastVersion.CTime
	return nil
}

// Finalize permanently discards every directory's previous/ layout,
// committing an upgrade. Idempotent.
func (e *Engine) Finalize() error {
	for _, d := range e.set.Active() {
		if err := d.Finalize(); err != nil {
			return fmt.Errorf("finalizing %s: %w", d.Path, err)
		}
	}
	return nil
}

// Import loads an image (and, if editsPath is non-empty, replays an edits
// file on top of it) from a pair of externally-supplied paths, then saves
// the result into this engine's configured storage directories as a
// brand-new checkpoint. It is used to seed a namespace's storage directly
// from another namespace's checkpoint rather than from live mutation
// traffic.
func (e *Engine) Import(imagePath, editsPath string, txId int64, ctx *savectx.Context) error {
	f, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("opening import image %s: %w", imagePath, err)
	}
	defer f.Close()

	snap, _, err := codec.LoadImage(f, imagePath, ctx)
	if err != nil {
		return fmt.Errorf("decoding import image %s: %w", imagePath, err)
	}

	if editsPath != "" {
		ef, err := os.Open(editsPath)
		if err != nil {
			return fmt.Errorf("opening import edits %s: %w", editsPath, err)
		}
		defer ef.Close()
		if _, err := e.journal.LoadFSEdits(ef); err != nil {
			return fmt.Errorf("replaying import edits %s: %w", editsPath, err)
		}
	}

	return e.SaveNamespace(snap, txId, ctx)
}
