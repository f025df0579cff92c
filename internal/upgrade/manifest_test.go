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

package upgrade

import (
	"os"
	"path/filepath"
	"testing"
)

func TestManifestManagerMissingFile(t *testing.T) {
	m := NewManifestManager(filepath.Join(t.TempDir(), "upgrade.jsonc"))

	pending, err := m.UpgradeState()
	if err != nil || pending {
		t.Fatalf("UpgradeState() = %v, %v, want false, nil", pending, err)
	}
	if initiated, err := m.InitializeUpgrade(); err != nil || initiated {
		t.Fatalf("InitializeUpgrade() = %v, %v, want false, nil (no target version set)", initiated, err)
	}
}

func TestManifestManagerJSONCWithComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upgrade.jsonc")
	content := `{
  // operator-set target for the next rolling upgrade
  "target_version": -31,
  "pending": false,
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewManifestManager(path)

	v, err := m.UpgradeVersion()
	if err != nil {
		t.Fatal(err)
	}
	if v != -31 {
		t.Fatalf("UpgradeVersion() = %d, want -31", v)
	}

	initiated, err := m.InitializeUpgrade()
	if err != nil || !initiated {
		t.Fatalf("InitializeUpgrade() = %v, %v, want true, nil", initiated, err)
	}
	pending, err := m.UpgradeState()
	if err != nil || !pending {
		t.Fatalf("UpgradeState() = %v, %v, want true, nil", pending, err)
	}
}
