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
	"bufio"
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/nsimage/nsimage/codec"
)

// Info is the StorageInfo tuple shared across all directories of a
// namespace: layout version, namespace id, and creation time.
type Info struct {
	LayoutVersion int32
	NamespaceID   int32
	CTime         int64
}

// DigestRequired reports whether a VERSION at this layout version must carry
// an image digest. Delegates to codec.DigestRequired so the threshold has a
// single definition shared with the wire format that actually needs it.
func (i Info) DigestRequired() bool { return codec.DigestRequired(i.LayoutVersion) }

// Version is the parsed content of a VERSION properties file.
type Version struct {
	Info

	StorageType               string
	DistributedUpgradeState   bool
	DistributedUpgradeVersion int32
	ImageMD5Digest            string // hex-encoded; empty if absent.
}

const storageTypeNameNode = "NAME_NODE"

// readVersion parses current/VERSION. It fails if a digest is required by
// this layout version but absent, or present on a layout that predates the
// digest's introduction.
func readVersion(path string) (Version, error) {
	f, err := os.Open(path)
	if err != nil {
		return Version{}, err
	}
	defer f.Close()

	props := map[string]string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return Version{}, fmt.Errorf("%w: malformed VERSION line %q", ErrInconsistentState, line)
		}
		props[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if err := sc.Err(); err != nil {
		return Version{}, err
	}

	v := Version{StorageType: props["storageType"]}
	var perr error
	mustInt32 := func(key string) int32 {
		n, err := strconv.ParseInt(props[key], 10, 32)
		if err != nil {
			perr = fmt.Errorf("%w: VERSION field %s: %v", ErrInconsistentState, key, err)
		}
		return int32(n)
	}
	v.LayoutVersion = mustInt32("layoutVersion")
	v.NamespaceID = mustInt32("namespaceID")
	cTime, err := strconv.ParseInt(props["cTime"], 10, 64)
	if err != nil {
		return Version{}, fmt.Errorf("%w: VERSION field cTime: %v", ErrInconsistentState, err)
	}
	v.CTime = cTime
	if perr != nil {
		return Version{}, perr
	}

	if s, ok := props["distributedUpgradeState"]; ok {
		v.DistributedUpgradeState = s == "true"
	}
	if s, ok := props["distributedUpgradeVersion"]; ok {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return Version{}, fmt.Errorf("%w: VERSION field distributedUpgradeVersion: %v", ErrInconsistentState, err)
		}
		v.DistributedUpgradeVersion = int32(n)
	}
	v.ImageMD5Digest = props["imageMD5Digest"]

	if v.DigestRequired() && v.ImageMD5Digest == "" {
		return Version{}, fmt.Errorf("%w: layout %d", ErrDigestRequired, v.LayoutVersion)
	}
	if !v.DigestRequired() && v.ImageMD5Digest != "" {
		return Version{}, fmt.Errorf("%w: digest present on layout %d which predates digests", ErrInconsistentState, v.LayoutVersion)
	}

	return v, nil
}

// writeVersion serializes v as a properties file and writes it atomically.
// Per spec.md §3/§4.1, VERSION must be the last file written in any
// multi-file directory transition; callers are responsible for sequencing
// the call accordingly.
func writeVersion(path string, v Version) error {
	if v.StorageType == "" {
		v.StorageType = storageTypeNameNode
	}
	if v.DigestRequired() && v.ImageMD5Digest == "" {
		return fmt.Errorf("%w: refusing to write VERSION without digest", ErrDigestRequired)
	}

	keys := []string{"layoutVersion", "namespaceID", "cTime", "storageType"}
	props := map[string]string{
		"layoutVersion": strconv.FormatInt(int64(v.LayoutVersion), 10),
		"namespaceID":   strconv.FormatInt(int64(v.NamespaceID), 10),
		"cTime":         strconv.FormatInt(v.CTime, 10),
		"storageType":   v.StorageType,
	}
	if v.DistributedUpgradeState {
		props["distributedUpgradeState"] = "true"
		keys = append(keys, "distributedUpgradeState")
	}
	if v.DistributedUpgradeVersion != 0 {
		props["distributedUpgradeVersion"] = strconv.FormatInt(int64(v.DistributedUpgradeVersion), 10)
		keys = append(keys, "distributedUpgradeVersion")
	}
	if v.ImageMD5Digest != "" {
		props["imageMD5Digest"] = v.ImageMD5Digest
		keys = append(keys, "imageMD5Digest")
	}
	sort.Strings(keys[4:]) // keep the four mandatory fields first, optional fields sorted.

	var buf bytes.Buffer
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s=%s\n", k, props[k])
	}
	return atomic.WriteFile(path, bytes.NewReader(buf.Bytes()))
}
