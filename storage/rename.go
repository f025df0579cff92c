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
	"os"
)

// renameReplace renames src to dst, first removing dst if it exists. POSIX
// rename(2) silently overwrites an existing destination, but the protocol in
// spec.md §4.3.4/§4.2 must also work on platforms where rename refuses to
// overwrite; this helper falls back to delete-then-rename whenever the first
// rename fails, on every platform, so the behavior doesn't depend on which
// platform happens to be running.
func renameReplace(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	// Delete-then-rename fallback: some platforms refuse to rename over an
	// existing, non-empty destination.
	if rmErr := os.RemoveAll(dst); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return err
	}
	return os.Rename(src, dst)
}

// removeBestEffort deletes path, retrying once on failure, and succeeds
// silently if path is already gone. All deletes in this package use this
// best-effort-with-single-retry semantics per spec.md §7.
func removeBestEffort(path string) error {
	err := os.RemoveAll(path)
	if err == nil {
		return nil
	}
	return os.RemoveAll(path)
}
