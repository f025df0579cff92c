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

	"k8s.io/klog/v2"
)

// recover applies the four recovery rules of spec.md §4.1 to a directory
// classified as StateNeedsRecovery. It reports whether a fresh save should
// be forced as a consequence (the upgrade-completion rule implies one).
func (d *Directory) recover() (forceSave bool, err error) {
	switch {
	case exists(d.previousTempDir()) && !exists(d.previousDir()) && !exists(d.currentDir()):
		// Upgrade was interrupted after previous.tmp was populated but
		// before it was renamed into place: complete the upgrade and force
		// a fresh save so current/ is repopulated.
		klog.Infof("%s: completing interrupted upgrade (previous.tmp -> previous)", d.Path)
		if err := renameReplace(d.previousTempDir(), d.previousDir()); err != nil {
			return false, fmt.Errorf("recover %s: %w", d.Path, err)
		}
		return true, nil

	case exists(d.lastCheckpointTempDir()) && !exists(d.currentDir()):
		// Save was interrupted between staging current away and recreating
		// it: the old content is still intact under lastcheckpoint.tmp.
		klog.Infof("%s: restoring interrupted checkpoint (lastcheckpoint.tmp -> current)", d.Path)
		if err := renameReplace(d.lastCheckpointTempDir(), d.currentDir()); err != nil {
			return false, fmt.Errorf("recover %s: %w", d.Path, err)
		}
		return false, nil

	case exists(d.removedTempDir()):
		klog.Infof("%s: discarding interrupted rollback scratch (removed.tmp)", d.Path)
		if err := removeBestEffort(d.removedTempDir()); err != nil {
			return false, fmt.Errorf("recover %s: %w", d.Path, err)
		}
		return false, nil

	case exists(d.finalizedTempDir()):
		klog.Infof("%s: discarding interrupted finalize scratch (finalized.tmp)", d.Path)
		if err := removeBestEffort(d.finalizedTempDir()); err != nil {
			return false, fmt.Errorf("recover %s: %w", d.Path, err)
		}
		return false, nil

	default:
		return false, fmt.Errorf("%w: %s left in an unrecognized staging state", ErrInconsistentState, d.Path)
	}
}
