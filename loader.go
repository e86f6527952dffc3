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
	"strings"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/floats"

	"github.com/OpenPSG/sleepstage/cache"
	"github.com/OpenPSG/sleepstage/edf"
)

// GroupInfo describes the channels of one signal group in a recording.
type GroupInfo struct {
	Channels        []string // Channel labels in file order
	SampleRate      float64  // Sampling rate in Hz shared by every channel
	Gain            float64  // Constant gain applied to every sample
	SamplesPerEpoch int      // Samples per channel per epoch
}

// RecordingPackage is one recording cut into epochs, with one tensor per
// signal group present in the recording.
type RecordingPackage struct {
	ID          string                 // Recording identifier, the file base name
	EpochLength float64                // Epoch length in seconds
	Duration    float64                // Recording duration in seconds
	Tensors     map[Group]*EpochTensor // Epoch tensors by signal group
	Groups      map[Group]GroupInfo    // Channel metadata by signal group
	Labels      []Stage                // One label per epoch, nil if unlabeled
}

// Present returns the signal groups with a tensor, in Groups order.
func (p *RecordingPackage) Present() []Group {
	var present []Group
	for _, g := range Groups {
		if _, ok := p.Tensors[g]; ok {
			present = append(present, g)
		}
	}
	return present
}

// Epochs returns the number of epochs every tensor holds.
func (p *RecordingPackage) Epochs() int {
	if len(p.Tensors) == 0 {
		return len(p.Labels)
	}
	n := -1
	for _, t := range p.Tensors {
		if n < 0 || t.Epochs < n {
			n = t.Epochs
		}
	}
	return n
}

// Loader turns recordings and their annotations into RecordingPackages.
type Loader struct {
	Config Config
	Cache  cache.Store // Optional; nil disables caching
}

// NewLoader returns a Loader using cfg.
func NewLoader(cfg Config) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Loader{Config: cfg}, nil
}

// Load loads one labeled recording with the default configuration and the
// given epoch length.
func Load(recordingPath, annotationPath string, epochLength float64) (*RecordingPackage, error) {
	l, err := NewLoader(DefaultConfig().WithEpochLength(epochLength))
	if err != nil {
		return nil, err
	}
	return l.Load(recordingPath, annotationPath)
}

// Load loads a recording and its stage annotations.
func (l *Loader) Load(recordingPath, annotationPath string) (*RecordingPackage, error) {
	if err := requireFile(recordingPath, "recording"); err != nil {
		return nil, err
	}
	if err := requireFile(annotationPath, "annotation file"); err != nil {
		return nil, err
	}

	return l.cached(func() (*RecordingPackage, error) {
		return l.loadLabeled(recordingPath, annotationPath)
	}, recordingPath, annotationPath)
}

// LoadUnlabeled loads a recording without annotations, such as a holdout
// recording to run inference on. The epoch count covers the whole signal.
func (l *Loader) LoadUnlabeled(recordingPath string) (*RecordingPackage, error) {
	if err := requireFile(recordingPath, "recording"); err != nil {
		return nil, err
	}

	return l.cached(func() (*RecordingPackage, error) {
		return l.loadUnlabeled(recordingPath)
	}, recordingPath)
}

func (l *Loader) loadLabeled(recordingPath, annotationPath string) (*RecordingPackage, error) {
	Logf("Loading %s with annotations %s", recordingPath, annotationPath)

	ef, err := openRecording(recordingPath)
	if err != nil {
		return nil, err
	}
	defer ef.Close()

	annotations, err := ParseAnnotations(annotationPath)
	if err != nil {
		return nil, err
	}
	if len(annotations.Stages) == 0 {
		return nil, fmt.Errorf("%w: %s has no sleep stage events", ErrValidation, annotationPath)
	}

	epochLength := l.Config.EpochLength
	switch {
	case epochLength == 0:
		epochLength = annotations.EpochLength
	case annotations.EpochLengthDeclared && annotations.EpochLength != epochLength:
		Logf("  WARNING: %s declares %gs epochs, using %gs", annotationPath, annotations.EpochLength, epochLength)
	}

	duration := ef.Header().Duration().Seconds()
	if duration <= 0 {
		return nil, fmt.Errorf("%w: %s holds no data records", ErrValidation, recordingPath)
	}
	epochs := EpochCount(duration, epochLength)

	if skew := EpochCount(annotations.End(), epochLength) - epochs; l.Config.MaxEpochSkew >= 0 && skew > l.Config.MaxEpochSkew {
		return nil, fmt.Errorf("%w: annotations run %d epochs past the end of %s (tolerance %d)",
			ErrValidation, skew, recordingPath, l.Config.MaxEpochSkew)
	}

	if cov := CheckCoverage(annotations.Stages, duration); !cov.Valid() {
		Logf("  WARNING: annotations cover %.1f%% of the recording with %d gaps and %d overlaps",
			cov.Percent, len(cov.Gaps), len(cov.Overlaps))
	}

	labels, err := Rasterize(annotations.Stages, duration, epochLength)
	if err != nil {
		return nil, err
	}

	pkg, err := l.segmentRecording(recordingID(recordingPath), ef.Reader, epochLength, epochs)
	if err != nil {
		return nil, fmt.Errorf("error segmenting %s: %w", recordingPath, err)
	}

	// Every group is cut to the same count, but keep labels and tensors in
	// step should a group ever come up short.
	pkg.Labels = labels[:min(len(labels), pkg.Epochs())]

	Logf("Loaded %s epochs (%.2f hours)", humanize.Comma(int64(len(pkg.Labels))), float64(len(pkg.Labels))*epochLength/3600)
	Logf("Sleep stage distribution: %s", FormatDistribution(Distribution(pkg.Labels)))

	return pkg, nil
}

func (l *Loader) loadUnlabeled(recordingPath string) (*RecordingPackage, error) {
	Logf("Loading unlabeled recording %s", recordingPath)

	ef, err := openRecording(recordingPath)
	if err != nil {
		return nil, err
	}
	defer ef.Close()

	epochLength := l.Config.EpochLength
	if epochLength == 0 {
		epochLength = DefaultEpochLength
	}

	duration := ef.Header().Duration().Seconds()
	if duration <= 0 {
		return nil, fmt.Errorf("%w: %s holds no data records", ErrValidation, recordingPath)
	}
	epochs := EpochCount(duration, epochLength)

	pkg, err := l.segmentRecording(recordingID(recordingPath), ef.Reader, epochLength, epochs)
	if err != nil {
		return nil, fmt.Errorf("error segmenting %s: %w", recordingPath, err)
	}

	Logf("Loaded %s epochs (%.2f hours)", humanize.Comma(int64(pkg.Epochs())), float64(pkg.Epochs())*epochLength/3600)
	return pkg, nil
}

// segmentRecording reads every classified channel and cuts each signal group
// into epochs at its own sampling rate.
func (l *Loader) segmentRecording(id string, r *edf.Reader, epochLength float64, epochs int) (*RecordingPackage, error) {
	hdr := r.Header()

	indices := make(map[Group][]int)
	for i, sig := range hdr.Signals {
		if sig.IsAnnotations() {
			continue
		}
		if g, ok := GroupOf(sig.Label); ok {
			indices[g] = append(indices[g], i)
		}
	}

	Logf("Identified channels:")
	for _, g := range Groups {
		Logf("  %s: %q", strings.ToUpper(string(g)), labelsAt(hdr, indices[g]))
	}

	if len(indices[EEG]) == 0 {
		return nil, fmt.Errorf("%w: no EEG channels among %q", ErrValidation, hdr.Labels())
	}

	pkg := &RecordingPackage{
		ID:          id,
		EpochLength: epochLength,
		Duration:    hdr.Duration().Seconds(),
		Tensors:     make(map[Group]*EpochTensor),
		Groups:      make(map[Group]GroupInfo),
	}

	for _, g := range Groups {
		idx := indices[g]
		if len(idx) == 0 {
			continue
		}

		rate := hdr.SampleRate(idx[0])
		for _, i := range idx[1:] {
			if hdr.SampleRate(i) != rate {
				return nil, fmt.Errorf("%w: %s channels sampled at both %g Hz and %g Hz",
					ErrValidation, strings.ToUpper(string(g)), rate, hdr.SampleRate(i))
			}
		}

		gain := l.Config.Gain(g)
		traces := make(MultiChannel, len(idx))
		for k, i := range idx {
			samples, err := r.ReadSignal(i)
			if err != nil {
				return nil, fmt.Errorf("error reading signal %q: %w", hdr.Signals[i].Label, err)
			}
			if gain != 1 {
				floats.Scale(gain, samples)
			}
			traces[k] = samples
		}

		var w Waveform = traces
		if len(traces) == 1 {
			w = SingleChannel(traces[0])
		}

		t, err := Segment(w, rate, epochLength, epochs)
		if err != nil {
			return nil, err
		}

		pkg.Tensors[g] = t
		pkg.Groups[g] = GroupInfo{
			Channels:        labelsAt(hdr, idx),
			SampleRate:      rate,
			Gain:            gain,
			SamplesPerEpoch: t.Samples,
		}
		Logf("  %s: %d channels, %s samples/epoch, %g Hz",
			strings.ToUpper(string(g)), t.Channels, humanize.Comma(int64(t.Samples)), rate)
	}

	return pkg, nil
}

func labelsAt(hdr *edf.Header, idx []int) []string {
	labels := make([]string, len(idx))
	for k, i := range idx {
		labels[k] = hdr.Signals[i].Label
	}
	return labels
}

func openRecording(path string) (*edf.File, error) {
	ef, err := edf.OpenFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: recording %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("error reading recording: %w", err)
	}
	return ef, nil
}

func requireFile(path, what string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s %s", ErrNotFound, what, path)
		}
		return fmt.Errorf("error checking %s: %w", what, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s %s is a directory", ErrNotFound, what, path)
	}
	return nil
}

// recordingID returns the file name without directory or extension.
func recordingID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
