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

import (
	"errors"
	"fmt"
)

// ErrCorruptImage is the sentinel wrapped by every structural decode
// failure: malformed length, child-count overflow, parent-not-found in the
// full-path tree form, and EOF before the stream's declared content is
// fully consumed. Digest mismatches are reported by the digest package with
// its own sentinel; both are fatal and both carry the source file's
// identity in their message.
var ErrCorruptImage = errors.New("codec: corrupt image")

// ErrUnknownCodec is returned when a prefix names a compression codec that
// is not in the registry.
var ErrUnknownCodec = errors.New("codec: unknown codec")

// corruptf wraps ErrCorruptImage with the offending file's identity and a
// detail message.
func corruptf(name, format string, args ...any) error {
	return fmt.Errorf("%w: %s: "+format, append([]any{ErrCorruptImage, name}, args...)...)
}
