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
	"os"
	"testing"

	"github.com/nsimage/nsimage/digest"
)

// prepareUploadedCheckpoint simulates a remote secondary having already
// uploaded a replacement image into dir's fsimage.ckpt slot: the protocol's
// RollFSImage only ever promotes a file that's already there.
func prepareUploadedCheckpoint(t *testing.T, e *Engine) {
	t.Helper()
	for _, d := range e.set.ImageDirs() {
		if err := os.WriteFile(d.CheckpointImagePath(), []byte("uploaded-image"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRollUploadRollProtocolHappyPath(t *testing.T) {
	imageDir, editsDir := t.TempDir(), t.TempDir()
	journal := &fakeJournal{}
	e := newTestEngine(t, []string{imageDir}, []string{editsDir}, journal, nil)
	if err := e.SaveNamespace(smallTree(), 1, nil); err != nil {
		t.Fatalf("initial SaveNamespace: %v", err)
	}

	sig, err := e.RollEditLog()
	if err != nil {
		t.Fatalf("RollEditLog: %v", err)
	}
	if e.checkpointState != StateRolledEdits {
		t.Fatalf("checkpointState after RollEditLog = %v, want StateRolledEdits", e.checkpointState)
	}
	if journal.rolled != 1 {
		t.Fatalf("journal.rolled = %d, want 1", journal.rolled)
	}
	for _, d := range e.set.EditsDirs() {
		if !d.EditsNewExists() {
			t.Errorf("%s: edits.new not created by RollEditLog", d.Path)
		}
	}

	if err := e.ValidateCheckpointUpload(sig); err != nil {
		t.Fatalf("ValidateCheckpointUpload: %v", err)
	}
	if e.checkpointState != StateUploadStart {
		t.Fatalf("checkpointState after ValidateCheckpointUpload = %v, want StateUploadStart", e.checkpointState)
	}

	uploaded := digest.ImageDigest{1, 2, 3}
	if err := e.CheckpointUploadDone(uploaded); err != nil {
		t.Fatalf("CheckpointUploadDone: %v", err)
	}
	if e.imageDigest != uploaded {
		t.Fatalf("imageDigest after CheckpointUploadDone = %v, want %v", e.imageDigest, uploaded)
	}

	prepareUploadedCheckpoint(t, e)
	if err := e.RollFSImage(sig); err != nil {
		t.Fatalf("RollFSImage: %v", err)
	}
	if e.checkpointState != StateStart {
		t.Fatalf("checkpointState after RollFSImage = %v, want StateStart", e.checkpointState)
	}
	for _, d := range e.set.EditsDirs() {
		if d.EditsNewExists() {
			t.Errorf("%s: edits.new still present after RollFSImage", d.Path)
		}
	}
	for _, d := range e.set.ImageDirs() {
		if d.HasCheckpointImage() {
			t.Errorf("%s: fsimage.ckpt still present after RollFSImage", d.Path)
		}
	}
}

func TestProtocolOrderingViolations(t *testing.T) {
	imageDir := t.TempDir()
	e := newTestEngine(t, []string{imageDir}, nil, &fakeJournal{}, nil)
	if err := e.SaveNamespace(smallTree(), 1, nil); err != nil {
		t.Fatal(err)
	}

	if err := e.RollFSImage(CheckpointSignature{}); !errors.Is(err, ErrProtocolOrdering) {
		t.Errorf("RollFSImage before RollEditLog = %v, want ErrProtocolOrdering", err)
	}
	if err := e.ValidateCheckpointUpload(CheckpointSignature{}); !errors.Is(err, ErrProtocolOrdering) {
		t.Errorf("ValidateCheckpointUpload before RollEditLog = %v, want ErrProtocolOrdering", err)
	}

	sig, err := e.RollEditLog()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.RollEditLog(); !errors.Is(err, ErrProtocolOrdering) {
		t.Errorf("second RollEditLog = %v, want ErrProtocolOrdering", err)
	}

	staleSig := sig
	staleSig.CTime++
	if err := e.ValidateCheckpointUpload(staleSig); !errors.Is(err, ErrProtocolOrdering) {
		t.Errorf("ValidateCheckpointUpload with mismatched signature = %v, want ErrProtocolOrdering", err)
	}
	if err := e.CheckpointUploadDone(digest.ImageDigest{}); !errors.Is(err, ErrProtocolOrdering) {
		t.Errorf("CheckpointUploadDone before ValidateCheckpointUpload = %v, want ErrProtocolOrdering", err)
	}
}
