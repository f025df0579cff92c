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

// Package storage manages the set of on-disk storage directories that back
// a namespace checkpoint: their roles, VERSION metadata, advisory locks, and
// the recovery rules applied at startup after a crash mid-checkpoint.
package storage

import "errors"

// Error classification values for the storage package.
//
// Callers classify with errors.Is; implementations may wrap these with
// fmt.Errorf("...: %w", ...) for additional context.
var (
	// ErrNotFormatted is returned when a directory has no current/ and the
	// caller did not request formatting.
	ErrNotFormatted = errors.New("storage: not formatted")

	// ErrNonExistent is returned when a configured directory's path does
	// not exist at all; every configured directory must be reachable at
	// startup.
	ErrNonExistent = errors.New("storage: directory does not exist")

	// ErrInconsistentState is returned when a directory's on-disk contents
	// cannot be reconciled by the recovery rules.
	ErrInconsistentState = errors.New("storage: inconsistent state")

	// ErrDirectoryIO marks a transient per-directory I/O failure. The
	// directory is evicted from the active set and the calling operation
	// continues; it only becomes fatal when the active set is depleted.
	ErrDirectoryIO = errors.New("storage: directory I/O error")

	// ErrActiveSetDepleted is fatal: every directory of a required role has
	// been evicted.
	ErrActiveSetDepleted = errors.New("storage: active set depleted")

	// ErrDigestRequired is returned when a layout version that requires an
	// image digest has none recorded in VERSION.
	ErrDigestRequired = errors.New("storage: image digest required for this layout version")

	// ErrLocked indicates a directory could not be locked because another
	// process already holds its advisory lock.
	ErrLocked = errors.New("storage: directory already locked")
)
