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

import "errors"

// Error kinds the engine returns, distinguished with errors.Is. Storage and
// codec failures surface through their own packages' sentinels; these cover
// the conditions specific to engine-level protocol sequencing.
var (
	// ErrCheckpointCancelled is returned by SaveNamespace when the save was
	// cancelled through its SaveContext. Wraps savectx.ErrCancelled.
	ErrCheckpointCancelled = errors.New("nsimage: checkpoint cancelled")

	// ErrProtocolOrdering is returned when a caller invokes an engine
	// operation out of the sequence the upload+roll protocol requires, e.g.
	// CheckpointUploadDone before ValidateCheckpointUpload.
	ErrProtocolOrdering = errors.New("nsimage: operation invoked out of protocol order")

	// ErrUpgradeRequired is returned by start-up selection when the
	// configured layout version is newer than the one recorded on disk and
	// no upgrade has been requested.
	ErrUpgradeRequired = errors.New("nsimage: layout upgrade required")

	// ErrUpgradeInProgress is returned by Upgrade when an active storage
	// directory still holds a previous/ from an upgrade that was neither
	// finalized nor rolled back. No other operation checks for a pending
	// upgrade.
	ErrUpgradeInProgress = errors.New("nsimage: distributed upgrade in progress")
)
