// Copyright 2024 Google LLC. All Rights Reserved.
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

package layout

import (
	"path/filepath"
	"testing"
)

func TestImagePath(t *testing.T) {
	for _, test := range []struct {
		root     string
		wantPath string
	}{
		{root: "/data/nn1", wantPath: filepath.Join("/data/nn1", "current", "fsimage")},
		{root: "/data/nn2/", wantPath: filepath.Join("/data/nn2", "current", "fsimage")},
	} {
		if got := ImagePath(test.root); got != test.wantPath {
			t.Errorf("ImagePath(%q) = %q, want %q", test.root, got, test.wantPath)
		}
	}
}

func TestStagingPaths(t *testing.T) {
	root := "/data/nn1"
	for _, test := range []struct {
		name string
		got  string
		want string
	}{
		{"CurrentDir", CurrentDir(root), filepath.Join(root, "current")},
		{"PreviousDir", PreviousDir(root), filepath.Join(root, "previous")},
		{"LastCheckpointTempDir", LastCheckpointTempDir(root), filepath.Join(root, "lastcheckpoint.tmp")},
		{"PreviousCheckpointDir", PreviousCheckpointDir(root), filepath.Join(root, "previous.checkpoint")},
		{"RemovedTempDir", RemovedTempDir(root), filepath.Join(root, "removed.tmp")},
		{"PreviousTempDir", PreviousTempDir(root), filepath.Join(root, "previous.tmp")},
		{"FinalizedTempDir", FinalizedTempDir(root), filepath.Join(root, "finalized.tmp")},
	} {
		if test.got != test.want {
			t.Errorf("%s(%q) = %q, want %q", test.name, root, test.got, test.want)
		}
	}
}

func TestVersionAndEditsPaths(t *testing.T) {
	root := "/data/nn1"
	if got, want := VersionPath(root), filepath.Join(root, "current", "VERSION"); got != want {
		t.Errorf("VersionPath = %q, want %q", got, want)
	}
	if got, want := EditsPath(root), filepath.Join(root, "current", "edits"); got != want {
		t.Errorf("EditsPath = %q, want %q", got, want)
	}
	if got, want := EditsNewPath(root), filepath.Join(root, "current", "edits.new"); got != want {
		t.Errorf("EditsNewPath = %q, want %q", got, want)
	}
	if got, want := ImageCheckpointPath(root), filepath.Join(root, "current", "fsimage.ckpt"); got != want {
		t.Errorf("ImageCheckpointPath = %q, want %q", got, want)
	}
}
