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

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the engine's static configuration, loaded once at start-up.
// Field names follow the property names an operator would recognize rather
// than idiomatic Go naming, since they map 1:1 onto a long-lived on-disk
// key space.
type Config struct {
	// CheckpointDirs and CheckpointEditsDirs configure the StorageSet:
	// fs.checkpoint.dir / fs.checkpoint.edits.dir. A path present in both
	// gets the combined IMAGE+EDITS role.
	CheckpointDirs      []string `yaml:"fs.checkpoint.dir"`
	CheckpointEditsDirs []string `yaml:"fs.checkpoint.edits.dir"`

	// RestoreRemovedStorageDirs re-admits an evicted directory once it
	// becomes writable again: dfs.name.dir.restore.
	RestoreRemovedStorageDirs bool `yaml:"dfs.name.dir.restore"`

	// ImageCompress and ImageCompressionCodec gate LayoutCodec compression:
	// dfs.image.compress / dfs.image.compression.codec. The codec name must
	// resolve in the codec registry.
	ImageCompress       bool   `yaml:"dfs.image.compress"`
	ImageCompressionCodec string `yaml:"dfs.image.compression.codec"`

	// ImageSaveOnStart forces a checkpoint at start-up regardless of
	// needToSave: dfs.image.save.on.start.
	ImageSaveOnStart bool `yaml:"dfs.image.save.on.start"`

	// ImageTransferBandwidthPerSec throttles the external image-transfer
	// pipe used by the upload protocol, in bytes/sec; zero disables
	// throttling: dfs.image.transfer.bandwidthPerSec.
	ImageTransferBandwidthPerSec int64 `yaml:"dfs.image.transfer.bandwidthPerSec"`

	// CheckpointPeriodSeconds and CheckpointSizeBytes hold
	// fs.checkpoint.period (default 3600) and fs.checkpoint.size (default
	// 4 Mi). Start sets NeedToSave when the loaded fsimage is at least
	// CheckpointSizeBytes long; the edits length and CheckpointPeriodSeconds
	// are not consulted.
	CheckpointPeriodSeconds int64 `yaml:"fs.checkpoint.period"`
	CheckpointSizeBytes     int64 `yaml:"fs.checkpoint.size"`

	// LayoutVersion is the layout version this process writes new
	// checkpoints at.
	LayoutVersion int32 `yaml:"dfs.namenode.layoutVersion"`
}

const (
	defaultCheckpointPeriodSeconds = 3600
	defaultCheckpointSizeBytes     = 4 * 1024 * 1024
)

// LoadConfig reads and parses a YAML configuration file, applying the
// documented defaults for any field the file leaves at its zero value.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("nsimage: reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("nsimage: parsing config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if cfg.ImageCompress && cfg.ImageCompressionCodec == "" {
		return Config{}, fmt.Errorf("nsimage: dfs.image.compress is true but dfs.image.compression.codec is empty")
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.CheckpointPeriodSeconds == 0 {
		c.CheckpointPeriodSeconds = defaultCheckpointPeriodSeconds
	}
	if c.CheckpointSizeBytes == 0 {
		c.CheckpointSizeBytes = defaultCheckpointSizeBytes
	}
	if c.LayoutVersion == 0 {
		c.LayoutVersion = -30
	}
}
