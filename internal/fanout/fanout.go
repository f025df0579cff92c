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

// Package fanout runs one function concurrently across a namespace's
// storage directories, folding a per-directory failure into an eviction
// from the active set rather than failing the whole call. Writing images and
// creating empty edits, in a save or an upgrade, go through this one
// fan-out/eviction policy; promoting a checkpoint and rolling back an
// upgrade walk the directories one at a time without it.
package fanout

import "golang.org/x/sync/errgroup"

// Run calls fn concurrently for every element of dirs and waits for every
// call to finish. It then walks the results in the order of dirs. The first
// error satisfying fatal (if fatal is non-nil) ends the walk and is returned
// — used for cooperative cancellation, which must not be treated as a
// per-directory fault; failing directories after it are not evicted. Every
// other failing directory is evicted via evict instead of failing the
// call. Run reports an error only if a fatal error occurred or if eviction
// itself failed; it returns the directories that succeeded among those
// walked.
func Run[D any](dirs []D, fn func(d D) error, evict func(d D) error, fatal func(error) bool) (succeeded []D, err error) {
	results := make([]error, len(dirs))
	var g errgroup.Group
	for i, d := range dirs {
		i, d := i, d
		g.Go(func() error {
			results[i] = fn(d)
			return nil
		})
	}
	_ = g.Wait() // per-directory errors are captured in results, not returned here.

	for i, d := range dirs {
		if err := results[i]; err != nil {
			if fatal != nil && fatal(err) {
				return succeeded, err
			}
			if evErr := evict(d); evErr != nil {
				return succeeded, evErr
			}
			continue
		}
		succeeded = append(succeeded, d)
	}
	return succeeded, nil
}
