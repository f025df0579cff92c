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

package digest

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog")

	var buf bytes.Buffer
	w := NewWriter(&buf)
	if _, err := w.Write(content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	wantDigest := w.Sum()

	var out bytes.Buffer
	got, err := Verify(bytes.NewReader(buf.Bytes()), &out, wantDigest, "test-image")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got != wantDigest {
		t.Errorf("Verify() digest = %s, want %s", got, wantDigest)
	}
	if !bytes.Equal(out.Bytes(), content) {
		t.Errorf("Verify() copied %q, want %q", out.Bytes(), content)
	}
}

func TestVerifyMismatch(t *testing.T) {
	content := []byte("content")
	bad, err := Parse("00000000000000000000000000000001")
	if err != nil {
		t.Fatal(err)
	}
	_, err = Verify(bytes.NewReader(content), io.Discard, bad, "bad-image")
	if !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("Verify error = %v, want ErrDigestMismatch", err)
	}
}

func TestVerifyAdoptsZeroWant(t *testing.T) {
	content := []byte("freshly upgraded image")
	got, err := Verify(bytes.NewReader(content), io.Discard, ImageDigest{}, "image")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.IsZero() {
		t.Errorf("Verify() adopted digest is zero")
	}
}

func TestParseRoundTrip(t *testing.T) {
	w := NewWriter(io.Discard)
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	d := w.Sum()
	got, err := Parse(d.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != d {
		t.Errorf("Parse(%q) = %v, want %v", d.String(), got, d)
	}
}
