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

package nsimage

import (
	"io"
	"os"
	"sync"

	"github.com/nsimage/nsimage/nstree"
	"github.com/nsimage/nsimage/storage"
)

// fakeJournal is a minimal in-memory EditJournal double: enough for the
// engine's protocol tests without a real edit-log implementation.
type fakeJournal struct {
	mu        sync.Mutex
	open      bool
	rolled    int
	lastTxId  int64
	startTxId int64
}

func (j *fakeJournal) Open() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.open = true
	return nil
}

func (j *fakeJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.open = false
	return nil
}

func (j *fakeJournal) CreateEditLogFile(path string) error {
	return os.WriteFile(path, []byte{}, 0o644)
}

func (j *fakeJournal) LoadFSEdits(r io.Reader) (int64, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return 0, err
	}
	return j.lastTxId, nil
}

func (j *fakeJournal) RollEditLog() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.rolled++
	return nil
}

func (j *fakeJournal) PurgeEditLog() error { return nil }
func (j *fakeJournal) ExistsNew() bool     { return false }
func (j *fakeJournal) LastWrittenTxId() int64 { return j.lastTxId }
func (j *fakeJournal) SetStartTransactionId(txId int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.startTxId = txId
}
func (j *fakeJournal) AdjustReplication(r int16) int16 { return r }
func (j *fakeJournal) ProcessIOError(dir string)       {}

// fakeUpgradeManager is a minimal in-memory UpgradeManager double.
type fakeUpgradeManager struct {
	pending       bool
	targetVersion int32
	initCalls     int
}

func (m *fakeUpgradeManager) UpgradeState() (bool, error)   { return m.pending, nil }
func (m *fakeUpgradeManager) UpgradeVersion() (int32, error) { return m.targetVersion, nil }
func (m *fakeUpgradeManager) InitializeUpgrade() (bool, error) {
	m.initCalls++
	m.pending = true
	return true, nil
}

var _ EditJournal = (*fakeJournal)(nil)
var _ UpgradeManager = (*fakeUpgradeManager)(nil)

// smallTree returns a tiny namespace tree: a root with one subdirectory and
// one file carrying a single block, enough to exercise a full image
// round trip without pulling codec's own fixtures into this package.
func smallTree() *nstree.MutableSnapshot {
	file := &nstree.MutableFile{
		NameVal:               "hello.txt",
		MtimeVal:              1000,
		AtimeVal:              1000,
		PermissionVal:         nstree.Permission{User: "root", Group: "root", Mode: 0o644},
		ReplicationVal:        3,
		PreferredBlockSizeVal: 128 << 20,
		BlocksVal:             []nstree.Block{{BlockID: 1, NumBytes: 512, GenerationStamp: 1}},
	}
	sub := &nstree.MutableDirectory{
		NameVal:       "sub",
		MtimeVal:      999,
		PermissionVal: nstree.Permission{User: "root", Group: "root", Mode: 0o755},
		ChildrenVal:   []nstree.Node{file},
	}
	root := &nstree.MutableDirectory{
		NameVal:       "",
		MtimeVal:      999,
		PermissionVal: nstree.Permission{User: "root", Group: "root", Mode: 0o755},
		ChildrenVal:   []nstree.Node{sub},
	}
	return &nstree.MutableSnapshot{RootVal: root}
}

// newTestEngine builds an Engine over freshly formatted storage directories
// with the given image/edits paths, ready for Start.
func newTestEngine(t interface{ Fatal(...any) }, imageDirs, editsDirs []string, journal *fakeJournal, mgr UpgradeManager) *Engine {
	set := storage.New(imageDirs, editsDirs, false)
	if _, err := set.AnalyzeAndRecover(storage.StartupFormat); err != nil {
		t.Fatal(err)
	}
	cfg := Config{LayoutVersion: -30}
	cfg.applyDefaults()
	return NewEngine(cfg, set, journal, mgr)
}
