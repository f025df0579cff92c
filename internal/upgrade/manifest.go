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

// Package upgrade is a reference nsimage.UpgradeManager backed by a single,
// human-editable manifest file. An operator (or a deployment tool) writes
// the target layout version into the manifest before a rolling upgrade
// begins; ManifestManager reads it back to decide whether a distributed
// upgrade is pending and what version it targets.
package upgrade

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

// manifest is the on-disk shape. It is deliberately small and written in
// JSONC (JSON with comments) so an operator can annotate a pending upgrade
// inline.
type manifest struct {
	// Pending is true while a distributed upgrade is in flight: set by
	// InitializeUpgrade, cleared by an operator once every node has
	// finished upgrading and the change is ready to finalize.
	Pending bool `json:"pending"`
	// TargetVersion is the layout version the upgrade moves to.
	TargetVersion int32 `json:"target_version"`
}

// ManifestManager implements nsimage.UpgradeManager over a JSONC file on
// disk.
type ManifestManager struct {
	path string
}

// NewManifestManager returns a ManifestManager reading and writing path. The
// file need not exist: while it is absent, UpgradeState and UpgradeVersion
// report the zero state, and InitializeUpgrade reports false without
// creating it.
func NewManifestManager(path string) *ManifestManager {
	return &ManifestManager{path: path}
}

func (m *ManifestManager) read() (manifest, error) {
	raw, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return manifest{}, nil
	}
	if err != nil {
		return manifest{}, fmt.Errorf("upgrade: reading manifest %s: %w", m.path, err)
	}
	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return manifest{}, fmt.Errorf("upgrade: manifest %s is not valid JSONC: %w", m.path, err)
	}
	var man manifest
	if err := json.Unmarshal(standardized, &man); err != nil {
		return manifest{}, fmt.Errorf("upgrade: manifest %s: %w", m.path, err)
	}
	return man, nil
}

func (m *ManifestManager) write(man manifest) error {
	raw, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return fmt.Errorf("upgrade: encoding manifest: %w", err)
	}
	raw = append(raw, '\n')
	return atomic.WriteFile(m.path, bytes.NewReader(raw))
}

// UpgradeState reports whether a distributed upgrade is currently pending.
func (m *ManifestManager) UpgradeState() (bool, error) {
	man, err := m.read()
	if err != nil {
		return false, err
	}
	return man.Pending, nil
}

// UpgradeVersion reports the layout version a pending (or most recently
// initiated) upgrade targets.
func (m *ManifestManager) UpgradeVersion() (int32, error) {
	man, err := m.read()
	if err != nil {
		return 0, err
	}
	return man.TargetVersion, nil
}

// InitializeUpgrade marks the manifest pending at its already-recorded
// target version. It reports false without error if no target version has
// been set yet (the operator hasn't requested an upgrade), so callers can
// distinguish "nothing to do" from a hard failure.
func (m *ManifestManager) InitializeUpgrade() (bool, error) {
	man, err := m.read()
	if err != nil {
		return false, err
	}
	if man.TargetVersion == 0 {
		return false, nil
	}
	man.Pending = true
	if err := m.write(man); err != nil {
		return false, err
	}
	return true, nil
}
