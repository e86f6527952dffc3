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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
)

// Pair is a recording file and its annotation file.
type Pair struct {
	ID         string
	Recording  string
	Annotation string
}

// Skipped records a recording left out of a corpus and why.
type Skipped struct {
	ID  string
	Err error
}

// Corpus is many recordings concatenated along the epoch axis.
type Corpus struct {
	EpochLength  float64                // Epoch length in seconds, shared by all recordings
	Groups       []Group                // Signal groups present in every recording, in Groups order
	Tensors      map[Group]*EpochTensor // Concatenated epochs by signal group
	Info         map[Group]GroupInfo    // Channel metadata of the first loaded recording
	Labels       []Stage                // One label per epoch
	RecordingIDs []string               // Source recording of each epoch
	Attempted    int                    // Recordings found in the directory
	Skipped      []Skipped              // Recordings that could not be used
}

// Loaded returns the number of recordings in the corpus.
func (c *Corpus) Loaded() int {
	return c.Attempted - len(c.Skipped)
}

// Epochs returns the number of epochs in the corpus.
func (c *Corpus) Epochs() int {
	return len(c.Labels)
}

// Recordings returns the distinct recording IDs in load order.
func (c *Corpus) Recordings() []string {
	var ids []string
	for i, id := range c.RecordingIDs {
		if i == 0 || c.RecordingIDs[i-1] != id {
			ids = append(ids, id)
		}
	}
	return ids
}

// LeaveOneOut splits epoch indices into those from every recording but id
// and those from id, for one leave-one-recording-out fold.
func (c *Corpus) LeaveOneOut(id string) (train, test []int) {
	for i, rid := range c.RecordingIDs {
		if rid == id {
			test = append(test, i)
		} else {
			train = append(train, i)
		}
	}
	return train, test
}

// add appends a recording. It checks compatibility before touching any
// buffer, so a rejected recording leaves the corpus unchanged.
func (c *Corpus) add(pkg *RecordingPackage) error {
	epochs := len(pkg.Labels)
	present := pkg.Present()
	for _, g := range present {
		if t := pkg.Tensors[g]; t.Epochs < epochs {
			return fmt.Errorf("%w: %s tensor has %d epochs for %d labels", ErrValidation, g, t.Epochs, epochs)
		}
	}

	if c.Tensors == nil {
		c.EpochLength = pkg.EpochLength
		c.Groups = present
		c.Tensors = make(map[Group]*EpochTensor, len(present))
		c.Info = make(map[Group]GroupInfo, len(present))
		for _, g := range present {
			// Clone so appends never write into the package's buffers.
			c.Tensors[g] = pkg.Tensors[g].Head(epochs).Clone()
			c.Info[g] = pkg.Groups[g]
		}
	} else {
		if pkg.EpochLength != c.EpochLength {
			return fmt.Errorf("%w: %gs epochs, corpus uses %gs", ErrValidation, pkg.EpochLength, c.EpochLength)
		}
		if !slices.Equal(present, c.Groups) {
			return fmt.Errorf("%w: signal groups %v, corpus requires %v", ErrValidation, present, c.Groups)
		}
		for _, g := range c.Groups {
			t := pkg.Tensors[g]
			if !c.Tensors[g].SameShape(t) {
				return fmt.Errorf("%w: %s is %d channels x %d samples, corpus has %d x %d",
					ErrValidation, g, t.Channels, t.Samples, c.Tensors[g].Channels, c.Tensors[g].Samples)
			}
		}
		for _, g := range c.Groups {
			if err := c.Tensors[g].Append(pkg.Tensors[g].Head(epochs)); err != nil {
				return err
			}
		}
	}

	c.Labels = append(c.Labels, pkg.Labels...)
	for i := 0; i < epochs; i++ {
		c.RecordingIDs = append(c.RecordingIDs, pkg.ID)
	}
	return nil
}

// FindPairs lists the recordings in dir, sorted by name, with the annotation
// file each one is paired with. Recordings without an annotation file have
// an empty Annotation. When two recordings differ only in the case of their
// extension, the first by name is kept.
func FindPairs(dir string, cfg Config) ([]Pair, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: directory %s", ErrNotFound, dir)
		}
		return nil, fmt.Errorf("error reading %s: %w", dir, err)
	}

	var pairs []Pair
	seen := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		ext := filepath.Ext(name)
		if entry.IsDir() || !strings.EqualFold(ext, cfg.RecordingExt) {
			continue
		}

		// The stem is the recording ID, so it must be unique.
		stem := strings.TrimSuffix(name, ext)
		if first, ok := seen[stem]; ok {
			Logf("  WARNING: ignoring %s: recording %s already uses ID %s", name, first, stem)
			continue
		}
		seen[stem] = name
		pair := Pair{ID: stem, Recording: filepath.Join(dir, name)}
		for _, suffix := range cfg.AnnotationSuffixes {
			candidate := filepath.Join(dir, stem+suffix)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				pair.Annotation = candidate
				break
			}
		}
		pairs = append(pairs, pair)
	}

	return pairs, nil
}

// LoadAll loads every labeled recording in dir with the default
// configuration and the given epoch length.
func LoadAll(dir string, epochLength float64) (*Corpus, error) {
	l, err := NewLoader(DefaultConfig().WithEpochLength(epochLength))
	if err != nil {
		return nil, err
	}
	return l.LoadAll(dir)
}

// LoadAll loads every labeled recording in dir into one corpus. Recordings
// without annotations, recordings that fail to load, and recordings whose
// signal groups or shapes differ from the first loaded one are skipped with
// a warning. LoadAll fails with ErrNoData if nothing could be loaded.
func (l *Loader) LoadAll(dir string) (*Corpus, error) {
	Logf("Loading all training data from %s...", dir)

	pairs, err := FindPairs(dir, l.Config)
	if err != nil {
		return nil, err
	}
	Logf("Found %d recordings", len(pairs))

	corpus := &Corpus{Attempted: len(pairs)}
	skip := func(id string, err error) {
		Logf("  WARNING: skipping %s: %v", id, err)
		corpus.Skipped = append(corpus.Skipped, Skipped{ID: id, Err: err})
	}

	for _, pair := range pairs {
		if pair.Annotation == "" {
			skip(pair.ID, fmt.Errorf("%w: no annotation file for %s", ErrNotFound, pair.Recording))
			continue
		}

		pkg, err := l.Load(pair.Recording, pair.Annotation)
		if err != nil {
			skip(pair.ID, err)
			continue
		}
		if err := corpus.add(pkg); err != nil {
			skip(pair.ID, err)
		}
	}

	if corpus.Loaded() == 0 {
		return nil, fmt.Errorf("%w: none of %d recordings in %s could be loaded", ErrNoData, len(pairs), dir)
	}

	for _, g := range corpus.Groups {
		t := corpus.Tensors[g]
		Logf("Combined %s shape: (%d, %d, %d)", strings.ToUpper(string(g)), t.Epochs, t.Channels, t.Samples)
	}
	Logf("Total loaded: %s epochs from %d of %d recordings",
		humanize.Comma(int64(corpus.Epochs())), corpus.Loaded(), corpus.Attempted)
	Logf("Sleep stage distribution: %s", FormatDistribution(Distribution(corpus.Labels)))

	return corpus, nil
}
