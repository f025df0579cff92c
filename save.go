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
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/nsimage/nsimage/codec"
	"github.com/nsimage/nsimage/digest"
	"github.com/nsimage/nsimage/internal/fanout"
	"github.com/nsimage/nsimage/savectx"
	"github.com/nsimage/nsimage/storage"
)

// SaveNamespace runs the full checkpoint protocol: quiesce the edit
// journal, stage every directory's current/ away, write a fresh image to
// each IMAGE directory and an empty edits to each EDITS directory in
// parallel, write VERSION last everywhere, retire the previous checkpoint,
// and reopen the journal. txId is the transaction id snap was taken at. ctx
// may be nil; if non-nil, Cancel may be called from another goroutine to
// abort the save cleanly via the cancellation fence.
func (e *Engine) SaveNamespace(snap NamespaceSnapshot, txId int64, ctx *savectx.Context) error {
	if ctx == nil {
		ctx = savectx.New(txId, 0)
	}

	if err := e.journal.Close(); err != nil {
		return fmt.Errorf("quiescing edit journal: %w", err)
	}

	active := e.set.Active()
	staged := make([]*storage.Directory, 0, len(active))
	for _, d := range active {
		if err := d.StageForCheckpoint(); err != nil {
			klog.Warningf("staging %s failed, evicting: %v", d.Path, err)
			if evErr := e.set.Evict(d, storage.EvictIOError); evErr != nil {
				return e.cancelSave(staged, fmt.Errorf("staging checkpoint: %w", evErr))
			}
			continue
		}
		staged = append(staged, d)
	}

	newDigest, saveErr := e.writeImages(snap, txId, ctx)
	if saveErr != nil {
		return e.cancelSave(staged, saveErr)
	}
	if err := ctx.CheckCancelled(); err != nil {
		return e.cancelSave(staged, err)
	}

	if err := e.writeEmptyEdits(); err != nil {
		return e.cancelSave(staged, err)
	}

	newFsTime := time.Now().UnixNano()
	if newFsTime <= e.fsTime {
		newFsTime = e.fsTime + 1
	}
	v := storage.Version{
		Info: storage.Info{LayoutVersion: e.layoutVersion, NamespaceID: e.namespaceID, CTime: e.cTime},
	}
	if v.DigestRequired() {
		v.ImageMD5Digest = newDigest.String()
	}
	for _, d := range e.set.Active() {
		if err := d.WriteFsTime(newFsTime); err != nil {
			return e.cancelSave(staged, fmt.Errorf("writing fstime to %s: %w", d.Path, err))
		}
		if err := d.WriteVersion(v); err != nil {
			return e.cancelSave(staged, fmt.Errorf("writing VERSION to %s: %w", d.Path, err))
		}
	}

	for _, d := range staged {
		if err := d.RetireCheckpoint(); err != nil {
			klog.Warningf("retiring previous checkpoint on %s: %v", d.Path, err)
		}
	}

	if err := e.journal.Open(); err != nil {
		return fmt.Errorf("reopening edit journal: %w", err)
	}
	e.imageDigest = newDigest
	e.fsTime = newFsTime
	e.checkpointState = StateStart
	return nil
}

// writeImages streams snap to every active IMAGE directory in parallel,
// evicting any directory whose write fails. It returns the digest common to
// every successful write. It returns an error when a write was cancelled,
// when an eviction failed (including the eviction of the last active
// directory), or when every IMAGE directory failed.
func (e *Engine) writeImages(snap NamespaceSnapshot, txId int64, ctx *savectx.Context) (digest.ImageDigest, error) {
	imageDirs := e.set.ImageDirs()
	opt := codec.Options{
		LayoutVersion:   e.layoutVersion,
		NamespaceID:     e.namespaceID,
		GenerationStamp: e.generationStamp,
		ImageTxId:       txId,
		Compress:        e.cfg.ImageCompress,
		CodecName:       e.cfg.ImageCompressionCodec,
	}

	var mu sync.Mutex
	digests := map[*storage.Directory]digest.ImageDigest{}
	succeeded, err := fanout.Run(imageDirs,
		func(d *storage.Directory) error {
			f, err := os.Create(d.ImagePath())
			if err != nil {
				return fmt.Errorf("creating image on %s: %w", d.Path, err)
			}
			dw := digest.NewWriter(f)
			writeErr := codec.SaveImage(dw, snap, opt, ctx)
			syncErr := f.Sync()
			closeErr := f.Close()
			if writeErr != nil || syncErr != nil || closeErr != nil {
				return errors.Join(writeErr, syncErr, closeErr)
			}
			mu.Lock()
			digests[d] = dw.Sum()
			mu.Unlock()
			return nil
		},
		func(d *storage.Directory) error {
			klog.Warningf("writing image on %s failed, evicting", d.Path)
			return e.set.Evict(d, storage.EvictIOError)
		},
		func(err error) bool { return errors.Is(err, savectx.ErrCancelled) },
	)
	if err != nil {
		return digest.ImageDigest{}, err
	}
	if len(succeeded) == 0 {
		return digest.ImageDigest{}, fmt.Errorf("%w: every IMAGE directory failed to save", storage.ErrActiveSetDepleted)
	}
	return digests[succeeded[0]], nil
}

// writeEmptyEdits creates a fresh, empty edits file on every active EDITS
// directory in parallel.
func (e *Engine) writeEmptyEdits() error {
	_, err := fanout.Run(e.set.EditsDirs(),
		func(d *storage.Directory) error { return e.journal.CreateEditLogFile(d.EditsPath()) },
		func(d *storage.Directory) error {
			klog.Warningf("creating edits on %s failed, evicting", d.Path)
			return e.set.Evict(d, storage.EvictIOError)
		},
		nil,
	)
	return err
}

// cancelSave is the cancellation fence: it restores every staged directory
// to its pre-save state, reopens the journal, and surfaces cause (wrapped
// in ErrCheckpointCancelled if the cause was a context cancellation).
func (e *Engine) cancelSave(staged []*storage.Directory, cause error) error {
	for _, d := range staged {
		if err := d.RestoreFromCheckpointTemp(); err != nil {
			klog.Errorf("restoring %s after cancelled save: %v", d.Path, err)
		}
	}
	if err := e.journal.Open(); err != nil {
		klog.Errorf("reopening journal after cancelled save: %v", err)
	}
	if errors.Is(cause, savectx.ErrCancelled) {
		return fmt.Errorf("%w: %w", ErrCheckpointCancelled, cause)
	}
	return cause
}
