// Copyright 2024 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package attngan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GenerateOptions controls a generation run of the command-line tool.
type GenerateOptions struct {
	// Seed initializes the noise sampler; the same seed reproduces the
	// same images.
	Seed int64 `yaml:"seed"`
	// Distribution of the noise vectors: "normal" (default) or "uniform".
	Distribution string `yaml:"distribution"`
	// OutputDir is the directory where images are written.
	OutputDir string `yaml:"output_dir"`
	// SaveAttention also writes per-word attention heatmaps.
	SaveAttention bool `yaml:"save_attention"`
	// HeatmapSize is the side of the upscaled attention heatmaps.
	HeatmapSize int `yaml:"heatmap_size"`
}

// DefaultGenerateOptions returns the options used when no YAML file is given.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Seed:         42,
		Distribution: "normal",
		OutputDir:    "out",
		HeatmapSize:  256,
	}
}

// LoadGenerateOptions reads generation options from a YAML file.
func LoadGenerateOptions(filename string) (GenerateOptions, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return GenerateOptions{}, fmt.Errorf("error reading options file: %w", err)
	}
	opts := DefaultGenerateOptions()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return GenerateOptions{}, fmt.Errorf("error unmarshaling options file: %w", err)
	}
	return opts, nil
}
