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
	"fmt"
	"sync"

	"k8s.io/klog/v2"
)

// StartupMode controls how AnalyzeAndRecover treats a NOT_FORMATTED
// directory.
type StartupMode int

const (
	// StartupRegular requires every configured directory to already be
	// formatted.
	StartupRegular StartupMode = iota
	// StartupFormat creates a fresh, empty current/ in any directory found
	// unformatted.
	StartupFormat
)

// EvictCause records why a directory left the active set, for logging and
// for notifying the edit-journal collaborator.
type EvictCause int

const (
	EvictIOError EvictCause = iota
	EvictRecoveryFailure
)

// Set manages a collection of storage directories classified by role. It is
// the single owner of which directories are "active" at any moment: callers
// never reach into a directory that Set has evicted.
type Set struct {
	mu       sync.Mutex
	active   []*Directory
	removed  []*Directory
	restorePolicy bool

	// onEvictEdits is invoked whenever a directory whose role includes
	// EDITS is evicted, so the edit-journal collaborator can stop routing
	// writes to it. May be nil.
	onEvictEdits func(path string)
}

// New builds a Set from two independent path lists. A path present in both
// lists gets RoleBoth; a path present only in imageDirs gets RoleImage; a
// path present only in editsDirs gets RoleEdits.
func New(imageDirs, editsDirs []string, restoreRemoved bool) *Set {
	roles := map[string]Role{}
	order := []string{}
	for _, p := range imageDirs {
		if _, ok := roles[p]; !ok {
			order = append(order, p)
		}
		roles[p] = RoleImage
	}
	for _, p := range editsDirs {
		if existing, ok := roles[p]; ok {
			if existing == RoleImage {
				roles[p] = RoleBoth
			}
			continue
		}
		roles[p] = RoleEdits
		order = append(order, p)
	}

	s := &Set{restorePolicy: restoreRemoved}
	for _, p := range order {
		s.active = append(s.active, NewDirectory(p, roles[p]))
	}
	return s
}

// OnEvictEdits registers a callback invoked when an EDITS-role directory is
// evicted, so the edit-journal collaborator can be notified (spec.md §4.1
// evict()).
func (s *Set) OnEvictEdits(f func(path string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvictEdits = f
}

// Active returns the directories currently in the active set, in
// configuration order. The returned slice is a snapshot; callers must not
// assume it remains valid after subsequent calls to Evict.
func (s *Set) Active() []*Directory {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Directory, len(s.active))
	copy(out, s.active)
	return out
}

// ImageDirs returns the active directories whose role includes IMAGE.
func (s *Set) ImageDirs() []*Directory {
	var out []*Directory
	for _, d := range s.Active() {
		if d.Role.IsImage() {
			out = append(out, d)
		}
	}
	return out
}

// EditsDirs returns the active directories whose role includes EDITS.
func (s *Set) EditsDirs() []*Directory {
	var out []*Directory
	for _, d := range s.Active() {
		if d.Role.IsEdits() {
			out = append(out, d)
		}
	}
	return out
}

// AnalyzeAndRecover classifies every configured directory and applies the
// recovery rules of spec.md §4.1. It returns whether any directory required
// recovery (callers fold this into needToSave) and fails fast if any
// directory is entirely unreachable.
func (s *Set) AnalyzeAndRecover(mode StartupMode) (recovered bool, err error) {
	s.mu.Lock()
	dirs := append([]*Directory(nil), s.active...)
	s.mu.Unlock()

	for _, d := range dirs {
		state, cerr := d.classify()
		if cerr != nil {
			return recovered, fmt.Errorf("classify %s: %w", d.Path, cerr)
		}
		switch state {
		case StateNonExistent:
			return recovered, fmt.Errorf("%w: %s", ErrNonExistent, d.Path)
		case StateNotFormatted:
			if mode != StartupFormat {
				return recovered, fmt.Errorf("%w: %s", ErrNotFormatted, d.Path)
			}
			if err := d.format(); err != nil {
				return recovered, err
			}
		case StateNeedsRecovery:
			forced, rerr := d.recover()
			if rerr != nil {
				klog.Warningf("recovery failed for %s, evicting: %v", d.Path, rerr)
				if evErr := s.Evict(d, EvictRecoveryFailure); evErr != nil {
					return recovered, evErr
				}
				continue
			}
			recovered = true
			_ = forced
		case StateNormal:
			// Nothing to do.
		}
		if err := d.lock(); err != nil {
			klog.Warningf("lock failed for %s, evicting: %v", d.Path, err)
			if evErr := s.Evict(d, EvictIOError); evErr != nil {
				return recovered, evErr
			}
		}
	}
	return recovered, nil
}

// Evict moves d from the active set to the removed set, releasing its lock
// and notifying the edit-journal collaborator if its role includes EDITS.
// It is fatal (returns ErrActiveSetDepleted) if this leaves the active set
// empty.
func (s *Set) Evict(d *Directory, cause EvictCause) error {
	s.mu.Lock()
	var notify func(string)
	kept := s.active[:0:0]
	found := false
	for _, a := range s.active {
		if a == d {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if found {
		s.active = kept
		s.removed = append(s.removed, d)
		if d.Role.IsEdits() {
			notify = s.onEvictEdits
		}
	}
	remaining := len(s.active)
	s.mu.Unlock()

	if !found {
		return nil
	}
	klog.Warningf("evicting storage directory %s (cause=%d)", d.Path, cause)
	d.unlock()
	if notify != nil {
		notify(d.Path)
	}
	if remaining == 0 {
		return fmt.Errorf("%w: evicted last directory %s", ErrActiveSetDepleted, d.Path)
	}
	return nil
}

// AttemptRestore re-accepts any removed directory whose path has become
// writable again. Re-entry discards whatever local content remains; the
// next save repopulates it. Per spec.md §9, callers must hold the engine's
// top-level lock around this call and any concurrent save.
func (s *Set) AttemptRestore() []string {
	if !s.restorePolicy {
		return nil
	}
	s.mu.Lock()
	candidates := append([]*Directory(nil), s.removed...)
	s.mu.Unlock()

	var restored []string
	for _, d := range candidates {
		if err := probeWritable(d.Path); err != nil {
			continue
		}
		if err := removeBestEffort(d.Path); err != nil {
			klog.Warningf("attemptRestore: cleaning %s: %v", d.Path, err)
			continue
		}
		if err := d.format(); err != nil {
			klog.Warningf("attemptRestore: reformatting %s: %v", d.Path, err)
			continue
		}
		if err := d.lock(); err != nil {
			klog.Warningf("attemptRestore: locking %s: %v", d.Path, err)
			continue
		}

		s.mu.Lock()
		for i, r := range s.removed {
			if r == d {
				s.removed = append(s.removed[:i], s.removed[i+1:]...)
				break
			}
		}
		s.active = append(s.active, d)
		s.mu.Unlock()

		restored = append(restored, d.Path)
		klog.Infof("restored storage directory %s", d.Path)
	}
	return restored
}
