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
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
)

// cacheVersion is bumped whenever the encoded RecordingPackage changes.
const cacheVersion = "v1"

// CacheKey derives a deterministic cache file name from the input files and
// the configuration. Any change to a file's path, size or modification time,
// or to the configuration, yields a different key.
func CacheKey(cfg Config, paths ...string) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("cache key needs at least one input")
	}

	h := sha256.New()
	fmt.Fprintln(h, cacheVersion)

	// json.Marshal sorts map keys, so the encoding is stable.
	encoded, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("error encoding config: %w", err)
	}
	h.Write(encoded)

	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("error resolving %s: %w", path, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return "", fmt.Errorf("error checking %s: %w", path, err)
		}
		fmt.Fprintf(h, "\n%s\x00%d\x00%d", abs, info.Size(), info.ModTime().UnixNano())
	}

	return fmt.Sprintf("%s_%x.cbor", recordingID(paths[0]), h.Sum(nil)[:8]), nil
}

// EncodePackage serializes a RecordingPackage for the cache.
func EncodePackage(p *RecordingPackage) ([]byte, error) {
	return cbor.Marshal(p)
}

// DecodePackage reverses EncodePackage.
func DecodePackage(blob []byte) (*RecordingPackage, error) {
	var p RecordingPackage
	if err := cbor.Unmarshal(blob, &p); err != nil {
		return nil, fmt.Errorf("error decoding cached package: %w", err)
	}
	for g, t := range p.Tensors {
		if t == nil || len(t.Data) != t.Epochs*t.Channels*t.Samples {
			return nil, fmt.Errorf("%w: cached %s tensor is inconsistent", ErrValidation, g)
		}
	}
	if len(p.Labels) > p.Epochs() {
		return nil, fmt.Errorf("%w: cached package has %d labels for %d epochs", ErrValidation, len(p.Labels), p.Epochs())
	}
	return &p, nil
}

// cached returns the package stored for paths, or calls load and stores its
// result. Cache failures are logged and never fail the load.
func (l *Loader) cached(load func() (*RecordingPackage, error), paths ...string) (*RecordingPackage, error) {
	if l.Cache == nil {
		return load()
	}

	key, err := CacheKey(l.Config, paths...)
	if err != nil {
		Logf("  WARNING: cache disabled for %s: %v", paths[0], err)
		return load()
	}

	blob, ok, err := l.Cache.Load(key)
	switch {
	case err != nil:
		Logf("  WARNING: cache lookup for %s failed: %v", key, err)
	case ok:
		pkg, err := DecodePackage(blob)
		if err == nil {
			Logf("Loaded %s from cache (%s)", pkg.ID, key)
			return pkg, nil
		}
		Logf("  WARNING: ignoring cache entry %s: %v", key, err)
	}

	pkg, err := load()
	if err != nil {
		return nil, err
	}

	blob, err = EncodePackage(pkg)
	if err == nil {
		err = l.Cache.Save(key, blob)
	}
	if err != nil {
		Logf("  WARNING: could not cache %s: %v", pkg.ID, err)
	}

	return pkg, nil
}
