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

	"github.com/nsimage/nsimage/codec"
	"github.com/nsimage/nsimage/digest"
	"github.com/nsimage/nsimage/nstree"
	"github.com/nsimage/nsimage/storage"
	"k8s.io/klog/v2"
)

// StartResult is what Start hands back once it has selected, loaded, and
// replayed a namespace image.
type StartResult struct {
	Snapshot   *nstree.MutableSnapshot
	StartTxId  int64
	NeedToSave bool
}

// Start performs start-up selection: it classifies and recovers every
// configured storage directory, picks the newest image and edits by fstime,
// resolves an interrupted checkpoint upload left behind by a crash, loads
// the selected image, and replays the selected edit log on top of it. The
// caller is responsible for populating its live namespace tree from the
// returned snapshot and for invoking SaveNamespace if NeedToSave is true.
func (e *Engine) Start() (*StartResult, error) {
	recovered, err := e.set.AnalyzeAndRecover(storage.StartupRegular)
	if err != nil {
		return nil, err
	}
	needToSave := recovered || e.cfg.ImageSaveOnStart

	imageDirs := e.set.ImageDirs()
	editsDirs := e.set.EditsDirs()
	if len(imageDirs) == 0 {
		return nil, fmt.Errorf("%w: no IMAGE-role storage directory available", storage.ErrActiveSetDepleted)
	}

	var imageVersions, editsVersions []storage.Version
	for _, d := range imageDirs {
		if !d.HasValidVersion() {
			needToSave = true
			continue
		}
		v, err := d.ReadVersion()
		if err != nil {
			return nil, fmt.Errorf("reading VERSION from %s: %w", d.Path, err)
		}
		imageVersions = append(imageVersions, v)
	}
	for _, d := range editsDirs {
		if !d.HasValidVersion() {
			needToSave = true
			continue
		}
		v, err := d.ReadVersion()
		if err != nil {
			return nil, fmt.Errorf("reading VERSION from %s: %w", d.Path, err)
		}
		editsVersions = append(editsVersions, v)
	}
	if err := checkVersionsConsistent(imageVersions, editsVersions); err != nil {
		return nil, err
	}
	switch {
	case len(imageVersions) > 0:
		ref := imageVersions[0]
		e.namespaceID, e.layoutVersion, e.cTime = ref.NamespaceID, ref.LayoutVersion, ref.CTime
		if d, derr := digest.Parse(ref.ImageMD5Digest); derr == nil {
			e.imageDigest = d
		}
	case len(editsVersions) > 0:
		ref := editsVersions[0]
		e.namespaceID, e.layoutVersion, e.cTime = ref.NamespaceID, ref.LayoutVersion, ref.CTime
	}
	if e.layoutVersion != 0 && e.layoutVersion > e.cfg.LayoutVersion {
		return nil, fmt.Errorf("%w: on-disk layout %d older than configured %d", ErrUpgradeRequired, e.layoutVersion, e.cfg.LayoutVersion)
	}

	latestImage, imgFsTime, err := latestByFsTime(imageDirs)
	if err != nil {
		return nil, err
	}
	latestEdits, editsFsTime, err := latestByFsTime(editsDirs)
	if err != nil {
		return nil, err
	}
	if latestEdits != nil && imgFsTime != editsFsTime {
		if imgFsTime > editsFsTime && imageAndEditsDisjoint(e.set.Active()) {
			klog.Infof("image fstime %d newer than edits fstime %d on disjoint storage; discarding stale edits", imgFsTime, editsFsTime)
			latestEdits = nil
		} else {
			return nil, fmt.Errorf("%w: image fstime %d and edits fstime %d disagree", storage.ErrInconsistentState, imgFsTime, editsFsTime)
		}
		needToSave = true
	}
	for _, d := range editsDirs {
		if d.EditsNewExists() {
			needToSave = true
		}
	}

	// Interrupted checkpoint upload: a leftover fsimage.ckpt means a roll
	// died between the upload finishing and RollFSImage promoting it. If
	// edits.new is present the secondary had already rolled its own half of
	// the protocol, so the image half is finished to match; otherwise the
	// upload is discarded and the prior image stands.
	editsNewPresent := latestEdits != nil && latestEdits.EditsNewExists()
	for _, d := range imageDirs {
		if !d.HasCheckpointImage() {
			continue
		}
		if editsNewPresent {
			klog.Infof("%s: completing interrupted checkpoint upload", d.Path)
			if err := d.PromoteCheckpointImage(); err != nil {
				return nil, fmt.Errorf("completing interrupted checkpoint upload on %s: %w", d.Path, err)
			}
		} else {
			klog.Infof("%s: discarding interrupted checkpoint upload", d.Path)
			if err := d.RemoveCheckpointImage(); err != nil {
				return nil, fmt.Errorf("discarding interrupted checkpoint upload on %s: %w", d.Path, err)
			}
		}
		needToSave = true
	}

	snap, startTxId, err := e.loadNamespace(latestImage, latestEdits)
	if err != nil {
		return nil, err
	}
	e.fsTime = imgFsTime

	if fi, statErr := os.Stat(latestImage.ImagePath()); statErr == nil && fi.Size() >= e.cfg.CheckpointSizeBytes {
		needToSave = true
	}

	return &StartResult{Snapshot: snap, StartTxId: startTxId, NeedToSave: needToSave}, nil
}

// loadNamespace reads imageDir's fsimage, verifies its digest if one was
// recorded, and replays editsDir's edits (if any) on top through the edit
// journal collaborator.
func (e *Engine) loadNamespace(imageDir, editsDir *storage.Directory) (*nstree.MutableSnapshot, int64, error) {
	f, err := os.Open(imageDir.ImagePath())
	if err != nil {
		return nil, 0, fmt.Errorf("opening image %s: %w", imageDir.ImagePath(), err)
	}
	defer f.Close()

	dr := digest.NewReader(f)
	snap, prefix, err := codec.LoadImage(dr, imageDir.ImagePath(), nil)
	if err != nil {
		return nil, 0, err
	}
	got := dr.Sum()
	if !e.imageDigest.IsZero() && got != e.imageDigest {
		return nil, 0, fmt.Errorf("%w: image %s", digest.ErrDigestMismatch, imageDir.ImagePath())
	}
	e.imageDigest = got

	startTxId := prefix.ImageTxId
	if editsDir != nil {
		ef, err := os.Open(editsDir.EditsPath())
		if err != nil {
			return nil, 0, fmt.Errorf("opening edits %s: %w", editsDir.EditsPath(), err)
		}
		defer ef.Close()
		lastTxId, err := e.journal.LoadFSEdits(ef)
		if err != nil {
			return nil, 0, fmt.Errorf("replaying edits %s: %w", editsDir.EditsPath(), err)
		}
		if lastTxId > startTxId {
			startTxId = lastTxId
		}
	}
	e.journal.SetStartTransactionId(startTxId + 1)
	return snap, startTxId, nil
}

// checkVersionsConsistent enforces spec's cross-directory agreement rule:
// every EDITS directory must agree with every other, every IMAGE directory
// must agree with every other, and IMAGE must agree with EDITS — except
// when there is exactly one IMAGE VERSION and at least one EDITS VERSION,
// in which case the lone image's VERSION is allowed to stand on its own (it
// will be overwritten at the next save). The directories' roles are not
// examined for this exception.
func checkVersionsConsistent(imageVersions, editsVersions []storage.Version) error {
	agree := func(vs []storage.Version) bool {
		for i := 1; i < len(vs); i++ {
			if vs[i].NamespaceID != vs[0].NamespaceID || vs[i].LayoutVersion != vs[0].LayoutVersion || vs[i].CTime != vs[0].CTime {
				return false
			}
		}
		return true
	}
	if !agree(editsVersions) {
		return fmt.Errorf("%w: disagreeing VERSION across EDITS directories", storage.ErrInconsistentState)
	}
	if len(imageVersions) == 1 && len(editsVersions) > 0 {
		return nil
	}
	if !agree(imageVersions) {
		return fmt.Errorf("%w: disagreeing VERSION across IMAGE directories", storage.ErrInconsistentState)
	}
	if len(imageVersions) > 0 && len(editsVersions) > 0 {
		a, b := imageVersions[0], editsVersions[0]
		if a.NamespaceID != b.NamespaceID || a.LayoutVersion != b.LayoutVersion || a.CTime != b.CTime {
			return fmt.Errorf("%w: IMAGE/EDITS VERSION disagree", storage.ErrInconsistentState)
		}
	}
	return nil
}

// imageAndEditsDisjoint reports whether no directory in the active set
// carries the combined IMAGE+EDITS role: i.e. images and edits always live
// in physically separate directories. Only in this arrangement can an
// image directory's save durably outrun its edits directory's purge,
// leaving a stale-but-harmless older edits file behind (spec.md §4.3.1).
func imageAndEditsDisjoint(dirs []*storage.Directory) bool {
	for _, d := range dirs {
		if d.Role == storage.RoleBoth {
			return false
		}
	}
	return true
}

// latestByFsTime returns the directory among dirs with the highest recorded
// fstime, and that fstime. It returns (nil, 0, nil) if dirs is empty.
func latestByFsTime(dirs []*storage.Directory) (*storage.Directory, int64, error) {
	var best *storage.Directory
	var bestT int64
	first := true
	for _, d := range dirs {
		t, err := d.ReadFsTime()
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, 0, fmt.Errorf("reading fstime from %s: %w", d.Path, err)
		}
		if first || t > bestT {
			best, bestT, first = d, t, false
		}
	}
	return best, bestT, nil
}
