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
	"encoding/binary"
	"io"
)

// Every scalar in the wire format is big-endian, matching the teacher's
// checkpoint log framing. Strings are length-prefixed with a uint16 byte
// count, which bounds any single field at 64KiB; that's enforced on write so
// a oversized name fails fast rather than silently truncating on read.

func writeInt16(w io.Writer, v int16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	_, err := w.Write(b[:])
	return err
}

func readInt16(r io.Reader, name string) (int16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, corruptf(name, "reading int16: %v", err)
	}
	return int16(binary.BigEndian.Uint16(b[:])), nil
}

func writeInt32(w io.Writer, v int32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	_, err := w.Write(b[:])
	return err
}

func readInt32(r io.Reader, name string) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, corruptf(name, "reading int32: %v", err)
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}

func writeInt64(w io.Writer, v int64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	_, err := w.Write(b[:])
	return err
}

func readInt64(r io.Reader, name string) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, corruptf(name, "reading int64: %v", err)
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

func writeBool(w io.Writer, v bool) error {
	var b [1]byte
	if v {
		b[0] = 1
	}
	_, err := w.Write(b[:])
	return err
}

func readBool(r io.Reader, name string) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, corruptf(name, "reading bool: %v", err)
	}
	return b[0] != 0, nil
}

const maxStringLen = 1<<16 - 1

func writeString(w io.Writer, s string) error {
	if len(s) > maxStringLen {
		return corruptf("<write>", "string of %d bytes exceeds %d byte limit", len(s), maxStringLen)
	}
	if err := writeInt16(w, int16(uint16(len(s)))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader, name string) (string, error) {
	n, err := readInt16(r, name)
	if err != nil {
		return "", err
	}
	ln := int(uint16(n))
	b := make([]byte, ln)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", corruptf(name, "reading string of declared length %d: %v", ln, err)
	}
	return string(b), nil
}
