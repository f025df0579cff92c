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

// Layout versions are negative and monotonically decrease with each feature
// release: a smaller (more negative) value is newer. A field gated "for
// layout <= X" is present at X and at every version newer than X. These
// constants are the single source of truth for every version-gated field in
// the prefix and inode payload; storage.Version reuses LayoutDigestRequired
// so the two packages can never drift apart on where the digest requirement
// begins.
const (
	// LayoutCurrent is the newest layout version this implementation writes.
	LayoutCurrent = -30

	// LayoutPreferredBlockSize is the oldest layout carrying a file's
	// preferred block size in its inode payload.
	LayoutPreferredBlockSize = -8
	// LayoutPermissions is the oldest layout carrying a permissionStatus on
	// every node.
	LayoutPermissions = -11
	// LayoutGenerationStamp is the oldest layout carrying a block generation
	// stamp counter in the prefix.
	LayoutGenerationStamp = -12
	// LayoutFilesUnderConstruction is the oldest layout carrying the
	// files-under-construction section after the tree.
	LayoutFilesUnderConstruction = -13
	// LayoutNumFilesInt64 is the oldest layout encoding the prefix's numFiles
	// field as int64 rather than int32.
	LayoutNumFilesInt64 = -16
	// LayoutAtime is the oldest layout carrying a file's last-access time.
	LayoutAtime = -17
	// LayoutLocalNameForm is the oldest layout encoding the tree as a
	// preorder walk of local names rather than full paths.
	LayoutLocalNameForm = -19
	// LayoutStoredTxIds is the oldest layout carrying the transaction id the
	// snapshot was taken at in the prefix.
	LayoutStoredTxIds = -24
	// LayoutDigestRequired is the oldest layout requiring a recorded
	// imageMD5Digest in VERSION.
	LayoutDigestRequired = -26
)

// hasGenerationStamp reports whether the prefix for layoutVersion carries a
// generationStamp field.
func hasGenerationStamp(layoutVersion int32) bool {
	return layoutVersion <= LayoutGenerationStamp
}

// hasStoredTxId reports whether the prefix for layoutVersion carries an
// imageTxId field.
func hasStoredTxId(layoutVersion int32) bool {
	return layoutVersion <= LayoutStoredTxIds
}

// numFilesIsInt64 reports whether the prefix's numFiles field is encoded as
// int64 rather than int32 for layoutVersion.
func numFilesIsInt64(layoutVersion int32) bool {
	return layoutVersion <= LayoutNumFilesInt64
}

// hasPermissions reports whether nodes for layoutVersion carry a
// permissionStatus.
func hasPermissions(layoutVersion int32) bool {
	return layoutVersion <= LayoutPermissions
}

// hasPreferredBlockSize reports whether files for layoutVersion carry a
// preferredBlockSize.
func hasPreferredBlockSize(layoutVersion int32) bool {
	return layoutVersion <= LayoutPreferredBlockSize
}

// hasAtime reports whether files for layoutVersion carry an atime.
func hasAtime(layoutVersion int32) bool {
	return layoutVersion <= LayoutAtime
}

// hasFilesUnderConstruction reports whether layoutVersion writes a
// files-under-construction section after the tree.
func hasFilesUnderConstruction(layoutVersion int32) bool {
	return layoutVersion <= LayoutFilesUnderConstruction
}

// usesLocalNameForm reports whether the tree for layoutVersion is encoded as
// a preorder walk of local names rather than full paths.
func usesLocalNameForm(layoutVersion int32) bool {
	return layoutVersion <= LayoutLocalNameForm
}

// DigestRequired reports whether layoutVersion requires a recorded
// imageMD5Digest. Exported so the storage package's VERSION reader/writer
// can apply the identical rule without duplicating the threshold.
func DigestRequired(layoutVersion int32) bool {
	return layoutVersion <= LayoutDigestRequired
}
