// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package sleepstage

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// DefaultEpochLength is the standard scoring epoch in seconds.
const DefaultEpochLength = 30.0

// Config holds every tunable of the loading pipeline. The zero value is not
// usable; start from DefaultConfig.
type Config struct {
	// EpochLength is the epoch duration in seconds. Zero defers to the
	// epoch length declared by each annotation file.
	EpochLength float64 `json:"epoch_length"`

	// RecordingExt is the file extension of recordings, matched without
	// regard to case.
	RecordingExt string `json:"recording_ext"`

	// AnnotationSuffixes are appended to a recording's base name to find its
	// annotation file. The first one that exists wins.
	AnnotationSuffixes []string `json:"annotation_suffixes"`

	// Gains are constant multipliers applied to every sample of a group.
	// Groups without an entry use a gain of 1.
	Gains map[Group]float64 `json:"gains"`

	// MaxEpochSkew is how many epochs the stage annotations may extend past
	// the end of the signal before a recording is rejected. Negative
	// disables the check.
	MaxEpochSkew int `json:"max_epoch_skew"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		EpochLength:        DefaultEpochLength,
		RecordingExt:       ".edf",
		AnnotationSuffixes: []string{".xml", "-nsrr.xml", "-profusion.xml"},
		Gains: map[Group]float64{
			EEG: 1,
			EOG: 1,
			EMG: 1,
		},
		MaxEpochSkew: 10,
	}
}

// LoadConfig reads a JSON configuration file. Fields omitted from the file
// keep their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Config{}, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 << 20
	if fileInfo.Size() > maxFileSize {
		return Config{}, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that every field holds a usable value.
func (c Config) Validate() error {
	if c.EpochLength < 0 || math.IsNaN(c.EpochLength) || math.IsInf(c.EpochLength, 0) {
		return fmt.Errorf("%w: epoch_length must be a finite number >= 0, got %v", ErrValidation, c.EpochLength)
	}
	if !strings.HasPrefix(c.RecordingExt, ".") || len(c.RecordingExt) < 2 {
		return fmt.Errorf("%w: recording_ext must look like \".edf\", got %q", ErrValidation, c.RecordingExt)
	}
	if len(c.AnnotationSuffixes) == 0 {
		return fmt.Errorf("%w: annotation_suffixes must not be empty", ErrValidation)
	}
	for _, suffix := range c.AnnotationSuffixes {
		if suffix == "" {
			return fmt.Errorf("%w: annotation_suffixes must not contain empty entries", ErrValidation)
		}
		if strings.EqualFold(suffix, c.RecordingExt) {
			return fmt.Errorf("%w: annotation suffix %q collides with recording_ext", ErrValidation, suffix)
		}
	}
	for g, gain := range c.Gains {
		if !g.Valid() {
			return fmt.Errorf("%w: gain for unknown signal group %q", ErrValidation, g)
		}
		if gain == 0 || math.IsNaN(gain) || math.IsInf(gain, 0) {
			return fmt.Errorf("%w: gain for %s must be finite and non-zero, got %v", ErrValidation, g, gain)
		}
	}
	return nil
}

// Gain returns the constant gain for a signal group.
func (c Config) Gain(g Group) float64 {
	if gain, ok := c.Gains[g]; ok {
		return gain
	}
	return 1
}

// WithEpochLength returns a copy of c using the given epoch length.
func (c Config) WithEpochLength(seconds float64) Config {
	c.AnnotationSuffixes = append([]string(nil), c.AnnotationSuffixes...)
	gains := make(map[Group]float64, len(c.Gains))
	for g, gain := range c.Gains {
		gains[g] = gain
	}
	c.Gains = gains
	c.EpochLength = seconds
	return c
}
