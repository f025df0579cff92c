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
	"compress/gzip"
	"io"
)

// Codec names and wraps a stream so the body that follows the prefix can be
// compressed independently of the framing around it. The prefix always
// records the chosen codec's Name so a reader with no prior knowledge of how
// the image was written can still decode it.
type Codec interface {
	Name() string
	NewReader(r io.Reader) (io.ReadCloser, error)
	NewWriter(w io.Writer) (io.WriteCloser, error)
}

// registry is the process-wide set of codecs this implementation knows how
// to read and write. It is populated by init and is not mutated afterward,
// so lookups never need a lock.
var registry = map[string]Codec{}

func register(c Codec) { registry[c.Name()] = c }

// Lookup returns the codec registered under name.
func Lookup(name string) (Codec, bool) {
	c, ok := registry[name]
	return c, ok
}

func init() {
	register(gzipCodec{})
}

// gzipCodec is the default compression codec for compressed images.
type gzipCodec struct{}

func (gzipCodec) Name() string { return "gzip" }

func (gzipCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

func (gzipCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriter(w), nil
}
