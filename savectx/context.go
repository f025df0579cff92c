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

// Package savectx carries the per-save transaction id, cooperative
// cancellation flag, and progress counters through one saveNamespace call
// (spec.md §4.5). A Context is created fresh for each save; it owns its own
// scratch state rather than reaching into package-level singletons.
package savectx

import (
	"errors"
	"sync/atomic"

	ma "github.com/RobinUS2/golang-moving-average"
)

// ErrCancelled is returned by CheckCancelled once the save has been
// cancelled. It is distinguishable from I/O errors via errors.Is so callers
// never mistake a cooperative cancellation for a directory failure.
var ErrCancelled = errors.New("savectx: save cancelled")

// rateWindow is the number of samples the moving-average throughput tracker
// smooths progress reports over.
const rateWindow = 10

// Context is per-save state: the transaction id at which the snapshot was
// taken, a cooperative cancellation flag, and progress counters.
type Context struct {
	// ImageTxId is the transaction id the snapshot was taken at. It is
	// written into the image prefix and used to seed the edit journal's
	// startTxId on reload.
	ImageTxId int64

	cancelled atomic.Bool
	reason    atomic.Value // string

	total     atomic.Int64
	processed atomic.Int64
	rate      *ma.MovingAverage
}

// New returns a fresh Context for a save taken at the given transaction id,
// expected to cover approximately totalInodes inodes (used only for
// progress reporting; it need not be exact).
func New(imageTxId int64, totalInodes int64) *Context {
	c := &Context{ImageTxId: imageTxId, rate: ma.New(rateWindow)}
	c.total.Store(totalInodes)
	return c
}

// Cancel sets the cancellation flag. Safe to call concurrently with
// CheckCancelled and Advance.
func (c *Context) Cancel(reason string) {
	c.reason.Store(reason)
	c.cancelled.Store(true)
}

// CheckCancelled returns ErrCancelled if Cancel has been called. Save
// writers poll this at directory boundaries, at each directory's top-level
// children emission, and before recursing into each subdirectory, never by
// interrupting an in-flight syscall.
func (c *Context) CheckCancelled() error {
	if !c.cancelled.Load() {
		return nil
	}
	reason, _ := c.reason.Load().(string)
	if reason == "" {
		return ErrCancelled
	}
	return errors.Join(ErrCancelled, errors.New(reason))
}

// Advance records that n additional inodes have been processed, and feeds
// the moving-average tracker so long-running saves can report a smoothed
// per-call throughput figure instead of a single noisy instantaneous one.
func (c *Context) Advance(n int64) {
	c.processed.Add(n)
	c.rate.Add(float64(n))
}

// Progress returns (processed, total) inode counts observed so far.
func (c *Context) Progress() (processed, total int64) {
	return c.processed.Load(), c.total.Load()
}

// Rate returns the moving average of inodes processed per Advance call
// across the last rateWindow calls, for periodic progress reporting. It is
// zero until at least one sample has been recorded.
func (c *Context) Rate() float64 {
	avg, err := c.rate.Avg()
	if err != nil {
		return 0
	}
	return avg
}
