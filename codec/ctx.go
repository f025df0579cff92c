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

package codec

import "github.com/nsimage/nsimage/savectx"

// checkCancelled and advance tolerate a nil Context so SaveImage/LoadImage
// can be exercised directly in tests without constructing one.

func checkCancelled(ctx *savectx.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.CheckCancelled()
}

func advance(ctx *savectx.Context, n int64) {
	if ctx == nil {
		return
	}
	ctx.Advance(n)
}
