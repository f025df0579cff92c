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
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
)

// ReadFsTime reads the checkpoint time recorded in this directory's
// current/fstime file.
func (d *Directory) ReadFsTime() (int64, error) {
	raw, err := os.ReadFile(d.FsTimePath())
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("%w: fstime file %s has %d bytes, want 8", ErrInconsistentState, d.FsTimePath(), len(raw))
	}
	return int64(binary.BigEndian.Uint64(raw)), nil
}

// WriteFsTime durably records t as this directory's checkpoint time.
func (d *Directory) WriteFsTime(t int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(t))
	return atomic.WriteFile(d.FsTimePath(), bytes.NewReader(buf[:]))
}

// ReadVersion parses this directory's current/VERSION file.
func (d *Directory) ReadVersion() (Version, error) {
	return readVersion(d.VersionPath())
}

// WriteVersion writes this directory's current/VERSION file. Must be called
// after every other file belonging to the same logical transition is
// durable on disk (spec.md §3, §4.1).
func (d *Directory) WriteVersion(v Version) error {
	return writeVersion(d.VersionPath(), v)
}
