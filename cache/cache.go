// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package cache stores encoded results under deterministic keys so they need
// not be recomputed. Nothing depends on an entry being present.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Store saves and loads opaque blobs by key.
type Store interface {
	// Save stores blob under key, replacing any previous entry.
	Save(key string, blob []byte) error

	// Load returns the blob stored under key. It reports false if there is none.
	Load(key string) ([]byte, bool, error)
}

// Dir is a Store keeping one file per key in a directory.
type Dir struct {
	path string
}

// NewDir returns a Store writing into path, creating it if needed.
func NewDir(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("error creating cache directory: %w", err)
	}
	return &Dir{path: path}, nil
}

func (d *Dir) file(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("invalid cache key %q", key)
	}
	return filepath.Join(d.path, key), nil
}

// Save writes blob to a temporary file and renames it into place, so readers
// never see a partial entry.
func (d *Dir) Save(key string, blob []byte) error {
	name, err := d.file(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(d.path, ".tmp-*")
	if err != nil {
		return fmt.Errorf("error creating cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error writing cache file: %w", err)
	}

	return os.Rename(tmp.Name(), name)
}

func (d *Dir) Load(key string) ([]byte, bool, error) {
	name, err := d.file(key)
	if err != nil {
		return nil, false, err
	}

	blob, err := os.ReadFile(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("error reading cache file: %w", err)
	}
	return blob, true, nil
}
