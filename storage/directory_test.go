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
	"path/filepath"
	"testing"
)

func TestRoleQueries(t *testing.T) {
	for _, test := range []struct {
		role    Role
		isImage bool
		isEdits bool
	}{
		{RoleImage, true, false},
		{RoleEdits, false, true},
		{RoleBoth, true, true},
	} {
		if got := test.role.IsImage(); got != test.isImage {
			t.Errorf("%v.IsImage() = %v, want %v", test.role, got, test.isImage)
		}
		if got := test.role.IsEdits(); got != test.isEdits {
			t.Errorf("%v.IsEdits() = %v, want %v", test.role, got, test.isEdits)
		}
	}
}

func TestClassify(t *testing.T) {
	t.Run("non-existent", func(t *testing.T) {
		d := NewDirectory(filepath.Join(t.TempDir(), "missing"), RoleBoth)
		got, err := d.classify()
		if err != nil {
			t.Fatalf("classify: %v", err)
		}
		if got != StateNonExistent {
			t.Errorf("classify() = %v, want StateNonExistent", got)
		}
	})

	t.Run("not formatted", func(t *testing.T) {
		d := NewDirectory(t.TempDir(), RoleBoth)
		got, err := d.classify()
		if err != nil {
			t.Fatalf("classify: %v", err)
		}
		if got != StateNotFormatted {
			t.Errorf("classify() = %v, want StateNotFormatted", got)
		}
	})

	t.Run("normal", func(t *testing.T) {
		d := NewDirectory(t.TempDir(), RoleBoth)
		if err := d.format(); err != nil {
			t.Fatal(err)
		}
		if err := d.WriteVersion(Version{Info: Info{LayoutVersion: -1, NamespaceID: 1, CTime: 1}}); err != nil {
			t.Fatal(err)
		}
		got, err := d.classify()
		if err != nil {
			t.Fatalf("classify: %v", err)
		}
		if got != StateNormal {
			t.Errorf("classify() = %v, want StateNormal", got)
		}
	})

	t.Run("needs recovery: lastcheckpoint.tmp without current", func(t *testing.T) {
		d := NewDirectory(t.TempDir(), RoleBoth)
		if err := os.MkdirAll(d.lastCheckpointTempDir(), dirPerm); err != nil {
			t.Fatal(err)
		}
		got, err := d.classify()
		if err != nil {
			t.Fatalf("classify: %v", err)
		}
		if got != StateNeedsRecovery {
			t.Errorf("classify() = %v, want StateNeedsRecovery", got)
		}
	})

	t.Run("needs recovery: missing VERSION", func(t *testing.T) {
		d := NewDirectory(t.TempDir(), RoleBoth)
		if err := d.format(); err != nil {
			t.Fatal(err)
		}
		got, err := d.classify()
		if err != nil {
			t.Fatalf("classify: %v", err)
		}
		if got != StateNeedsRecovery {
			t.Errorf("classify() = %v, want StateNeedsRecovery", got)
		}
	})
}

func TestLockExclusive(t *testing.T) {
	d1 := NewDirectory(t.TempDir(), RoleBoth)
	if err := d1.lock(); err != nil {
		t.Fatalf("first lock: %v", err)
	}
	defer d1.unlock()

	d2 := NewDirectory(d1.Path, RoleBoth)
	if err := d2.lock(); err == nil {
		t.Fatalf("second lock on same path succeeded, want error")
	}
}
