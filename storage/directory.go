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
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nsimage/nsimage/api/layout"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

// Role describes which artifacts a storage directory is responsible for.
// Modelled as a tagged variant rather than an inheritance hierarchy: IsImage
// and IsEdits both return true for BOTH.
type Role int

const (
	// RoleImage directories hold fsimage/fsimage.ckpt only.
	RoleImage Role = iota
	// RoleEdits directories hold edits/edits.new only.
	RoleEdits
	// RoleBoth directories hold both image and edits artifacts.
	RoleBoth
)

func (r Role) String() string {
	switch r {
	case RoleImage:
		return "IMAGE"
	case RoleEdits:
		return "EDITS"
	case RoleBoth:
		return "BOTH"
	default:
		return "UNKNOWN"
	}
}

// IsImage reports whether this role's directories carry image artifacts.
func (r Role) IsImage() bool { return r == RoleImage || r == RoleBoth }

// IsEdits reports whether this role's directories carry edits artifacts.
func (r Role) IsEdits() bool { return r == RoleEdits || r == RoleBoth }

// State is the classification assigned to a directory at startup, before any
// recovery rule has run.
type State int

const (
	// StateNonExistent means the configured path is not reachable at all.
	StateNonExistent State = iota
	// StateNotFormatted means the path exists but has never been formatted.
	StateNotFormatted
	// StateNormal means current/ is well formed and VERSION is present.
	StateNormal
	// StateNeedsRecovery means a staging directory was left behind by a
	// crash mid-transaction, or current/ exists without a VERSION file; see
	// the recovery rules in recovery.go.
	StateNeedsRecovery
)

// Filesystem permissions used for every directory/file this package creates.
const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Directory is a single on-disk storage directory: its absolute path, its
// role, its advisory lock, and its last-observed state.
type Directory struct {
	Path string
	Role Role

	lockFile *os.File
	state    State
}

// NewDirectory wraps an absolute path with the given role. It does not touch
// the filesystem.
func NewDirectory(path string, role Role) *Directory {
	return &Directory{Path: filepath.Clean(path), Role: role}
}

func (d *Directory) currentDir() string           { return layout.CurrentDir(d.Path) }
func (d *Directory) previousDir() string           { return layout.PreviousDir(d.Path) }
func (d *Directory) lastCheckpointTempDir() string { return layout.LastCheckpointTempDir(d.Path) }
func (d *Directory) previousCheckpointDir() string { return layout.PreviousCheckpointDir(d.Path) }
func (d *Directory) removedTempDir() string        { return layout.RemovedTempDir(d.Path) }
func (d *Directory) previousTempDir() string       { return layout.PreviousTempDir(d.Path) }
func (d *Directory) finalizedTempDir() string      { return layout.FinalizedTempDir(d.Path) }

// CurrentDir returns the path to this directory's current/ slot.
func (d *Directory) CurrentDir() string { return d.currentDir() }

// PreviousDir returns the path to this directory's previous/ slot.
func (d *Directory) PreviousDir() string { return d.previousDir() }

// PreviousCheckpointDir returns the path to this directory's
// previous.checkpoint/ slot (the one retained prior save).
func (d *Directory) PreviousCheckpointDir() string { return d.previousCheckpointDir() }

// ImagePath returns the path to current/fsimage.
func (d *Directory) ImagePath() string { return layout.ImagePath(d.Path) }

// CheckpointImagePath returns the path to current/fsimage.ckpt.
func (d *Directory) CheckpointImagePath() string { return layout.ImageCheckpointPath(d.Path) }

// EditsPath returns the path to current/edits.
func (d *Directory) EditsPath() string { return layout.EditsPath(d.Path) }

// EditsNewPath returns the path to current/edits.new.
func (d *Directory) EditsNewPath() string { return layout.EditsNewPath(d.Path) }

// FsTimePath returns the path to current/fstime.
func (d *Directory) FsTimePath() string { return layout.FsTimePath(d.Path) }

// VersionPath returns the path to current/VERSION.
func (d *Directory) VersionPath() string { return layout.VersionPath(d.Path) }

// classify inspects the filesystem and assigns d.state, without performing
// any recovery actions.
func (d *Directory) classify() (state State, err error) {
	defer func() { d.state = state }()
	fi, err := os.Stat(d.Path)
	if errors.Is(err, os.ErrNotExist) {
		return StateNonExistent, nil
	}
	if err != nil {
		return StateNonExistent, fmt.Errorf("stat(%s): %w", d.Path, err)
	}
	if !fi.IsDir() {
		return StateNonExistent, fmt.Errorf("%s: not a directory", d.Path)
	}

	for _, staging := range []string{d.previousTempDir(), d.lastCheckpointTempDir(), d.removedTempDir(), d.finalizedTempDir()} {
		if exists(staging) {
			return StateNeedsRecovery, nil
		}
	}

	if !exists(d.currentDir()) {
		return StateNotFormatted, nil
	}
	if !exists(d.VersionPath()) {
		return StateNeedsRecovery, nil
	}
	return StateNormal, nil
}

func exists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}

// format creates an empty current/ directory for a brand-new storage
// directory. It does not write VERSION; callers write that last once the
// rest of the directory's content is durable, per the invariant in spec.md
// §3.
func (d *Directory) format() error {
	if err := os.MkdirAll(d.currentDir(), dirPerm); err != nil {
		return fmt.Errorf("mkdir %s: %w", d.currentDir(), err)
	}
	return nil
}

// lock acquires an exclusive, non-blocking advisory flock on a dedicated
// lock file inside the directory, held for the directory's lifetime in the
// active set. Locking is best-effort and advisory only, matching the
// teacher's posix storage lockFile helper.
func (d *Directory) lock() error {
	if d.lockFile != nil {
		return nil
	}
	if err := os.MkdirAll(d.Path, dirPerm); err != nil {
		return fmt.Errorf("mkdir %s: %w", d.Path, err)
	}
	lockPath := filepath.Join(d.Path, "in_use.lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, filePerm)
	if err != nil {
		return fmt.Errorf("open lock file %s: %w", lockPath, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return fmt.Errorf("%w: %s", ErrLocked, d.Path)
		}
		return fmt.Errorf("flock(%s): %w", lockPath, err)
	}
	d.lockFile = f
	return nil
}

// unlock releases the advisory lock, if held. Errors are logged, not
// propagated: unlocking is best-effort cleanup on an eviction path that must
// not itself fail the caller's operation.
func (d *Directory) unlock() {
	if d.lockFile == nil {
		return
	}
	if err := unix.Flock(int(d.lockFile.Fd()), unix.LOCK_UN); err != nil {
		klog.Warningf("unlock(%s): %v", d.Path, err)
	}
	if err := d.lockFile.Close(); err != nil {
		klog.Warningf("close lock file(%s): %v", d.Path, err)
	}
	d.lockFile = nil
}
