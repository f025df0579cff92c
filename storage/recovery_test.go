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
	"os"
	"testing"
)

func TestRecoverUpgradeInterrupted(t *testing.T) {
	d := NewDirectory(t.TempDir(), RoleBoth)
	if err := os.MkdirAll(d.previousTempDir(), dirPerm); err != nil {
		t.Fatal(err)
	}
	marker := d.previousTempDir() + "/marker"
	if err := os.WriteFile(marker, []byte("x"), filePerm); err != nil {
		t.Fatal(err)
	}

	force, err := d.recover()
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !force {
		t.Errorf("recover() forceSave = false, want true")
	}
	if !exists(d.previousDir()) {
		t.Errorf("previous/ was not created")
	}
	if exists(d.previousTempDir()) {
		t.Errorf("previous.tmp/ still present")
	}
}

func TestRecoverCheckpointInterrupted(t *testing.T) {
	d := NewDirectory(t.TempDir(), RoleBoth)
	if err := os.MkdirAll(d.lastCheckpointTempDir(), dirPerm); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(d.lastCheckpointTempDir()+"/fsimage", []byte("image"), filePerm); err != nil {
		t.Fatal(err)
	}

	force, err := d.recover()
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if force {
		t.Errorf("recover() forceSave = true, want false")
	}
	if !exists(d.ImagePath()) {
		t.Errorf("current/fsimage was not restored")
	}
}

func TestRecoverRemovedTempDeleted(t *testing.T) {
	d := NewDirectory(t.TempDir(), RoleBoth)
	if err := os.MkdirAll(d.removedTempDir(), dirPerm); err != nil {
		t.Fatal(err)
	}
	if _, err := d.recover(); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if exists(d.removedTempDir()) {
		t.Errorf("removed.tmp still present")
	}
}

func TestRecoverFinalizedTempDeleted(t *testing.T) {
	d := NewDirectory(t.TempDir(), RoleBoth)
	if err := os.MkdirAll(d.finalizedTempDir(), dirPerm); err != nil {
		t.Fatal(err)
	}
	if _, err := d.recover(); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if exists(d.finalizedTempDir()) {
		t.Errorf("finalized.tmp still present")
	}
}
