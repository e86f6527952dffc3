// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package sleepstage_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenPSG/sleepstage"
)

func init() {
	sleepstage.SetLogger(nil)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	rec := writeRecording(t, filepath.Join(dir, "R1.edf"), 170, psgChannels(0))
	ann := writeFile(t, filepath.Join(dir, "R1.xml"), annotationXML("30", wakeThenN2...))

	pkg, err := sleepstage.Load(rec, ann, 30)
	require.NoError(t, err)

	assert.Equal(t, "R1", pkg.ID)
	assert.Equal(t, 30.0, pkg.EpochLength)
	assert.Equal(t, 170.0, pkg.Duration)
	assert.Equal(t, []sleepstage.Stage{0, 0, 2, 2, 2, 2}, pkg.Labels)
	assert.Equal(t, 6, pkg.Epochs())
	assert.Equal(t, []sleepstage.Group{sleepstage.EEG, sleepstage.EOG, sleepstage.EMG}, pkg.Present())

	assert.Equal(t, sleepstage.GroupInfo{
		Channels:        []string{"EEG C3-A2", "EEG(sec) C4-A1"},
		SampleRate:      10,
		Gain:            1,
		SamplesPerEpoch: 300,
	}, pkg.Groups[sleepstage.EEG])
	assert.Equal(t, []string{"EOG(L)", "EOG(R)"}, pkg.Groups[sleepstage.EOG].Channels)
	assert.Equal(t, 5.0, pkg.Groups[sleepstage.EOG].SampleRate)
	assert.Equal(t, []string{"EMG Chin"}, pkg.Groups[sleepstage.EMG].Channels)

	eeg := pkg.Tensors[sleepstage.EEG]
	assert.Equal(t, [3]int{6, 2, 300}, [3]int{eeg.Epochs, eeg.Channels, eeg.Samples})
	eog := pkg.Tensors[sleepstage.EOG]
	assert.Equal(t, [3]int{6, 2, 150}, [3]int{eog.Epochs, eog.Channels, eog.Samples})
	emg := pkg.Tensors[sleepstage.EMG]
	assert.Equal(t, [3]int{6, 1, 300}, [3]int{emg.Epochs, emg.Channels, emg.Samples})

	// Samples land at their position in the continuous signal.
	assert.InDelta(t, 5, eeg.At(0, 0, 5), 0.05)
	assert.InDelta(t, 2+(1234%400), eeg.At(4, 1, 34), 0.05)
	assert.InDelta(t, 1+(777%400), eog.At(5, 0, 27), 0.05)
	assert.InDelta(t, 4+(1699%400), emg.At(5, 0, 199), 0.05)

	// 170 s of signal fill 5 whole epochs and a third of the sixth.
	for _, s := range eeg.Trace(5, 0)[200:] {
		require.Zero(t, s)
	}
	for _, s := range eog.Trace(5, 1)[100:] {
		require.Zero(t, s)
	}
}

func TestLoadEpochLengthFromAnnotations(t *testing.T) {
	dir := t.TempDir()
	rec := writeRecording(t, filepath.Join(dir, "R1.edf"), 170, psgChannels(0))
	ann := writeFile(t, filepath.Join(dir, "R1.xml"), annotationXML("20", wakeThenN2...))

	pkg, err := sleepstage.Load(rec, ann, 0)
	require.NoError(t, err)
	assert.Equal(t, 20.0, pkg.EpochLength)
	assert.Equal(t, []sleepstage.Stage{0, 0, 0, 2, 2, 2, 2, 2, 2}, pkg.Labels)
	assert.Equal(t, 200, pkg.Tensors[sleepstage.EEG].Samples)
	assert.Equal(t, 100, pkg.Tensors[sleepstage.EOG].Samples)

	// An explicit epoch length overrides the file.
	pkg, err = sleepstage.Load(rec, ann, 30)
	require.NoError(t, err)
	assert.Equal(t, 30.0, pkg.EpochLength)
	assert.Len(t, pkg.Labels, 6)
}

func TestLoadAppliesGroupGain(t *testing.T) {
	dir := t.TempDir()
	rec := writeRecording(t, filepath.Join(dir, "R1.edf"), 60, psgChannels(0))
	ann := writeFile(t, filepath.Join(dir, "R1.xml"), annotationXML("30", wakeThenN2...))

	cfg := sleepstage.DefaultConfig()
	cfg.Gains[sleepstage.EMG] = -2
	l, err := sleepstage.NewLoader(cfg)
	require.NoError(t, err)

	pkg, err := l.Load(rec, ann)
	require.NoError(t, err)
	assert.Equal(t, -2.0, pkg.Groups[sleepstage.EMG].Gain)
	assert.InDelta(t, -2*(4+10), pkg.Tensors[sleepstage.EMG].At(0, 0, 10), 0.1)
	assert.InDelta(t, 10, pkg.Tensors[sleepstage.EEG].At(0, 0, 10), 0.05)
}

func TestLoadWithoutOptionalGroups(t *testing.T) {
	dir := t.TempDir()
	rec := writeRecording(t, filepath.Join(dir, "R1.edf"), 90, []testChannel{
		{Label: "C3-M2", Rate: 20, Value: ramp(0)},
		{Label: "Airflow", Rate: 8, Value: ramp(0)},
	})
	ann := writeFile(t, filepath.Join(dir, "R1.xml"), annotationXML("30", wakeThenN2...))

	pkg, err := sleepstage.Load(rec, ann, 30)
	require.NoError(t, err)
	assert.Equal(t, []sleepstage.Group{sleepstage.EEG}, pkg.Present())
	assert.Equal(t, 600, pkg.Tensors[sleepstage.EEG].Samples)
	assert.Equal(t, []sleepstage.Stage{0, 0, 2}, pkg.Labels)
}

func TestLoadFailures(t *testing.T) {
	dir := t.TempDir()
	rec := writeRecording(t, filepath.Join(dir, "R1.edf"), 60, psgChannels(0))
	ann := writeFile(t, filepath.Join(dir, "R1.xml"), annotationXML("30", wakeThenN2...))

	t.Run("missing recording", func(t *testing.T) {
		_, err := sleepstage.Load(filepath.Join(dir, "nope.edf"), ann, 30)
		require.ErrorIs(t, err, sleepstage.ErrNotFound)
	})

	t.Run("missing annotations", func(t *testing.T) {
		_, err := sleepstage.Load(rec, filepath.Join(dir, "nope.xml"), 30)
		require.ErrorIs(t, err, sleepstage.ErrNotFound)
	})

	t.Run("malformed annotations", func(t *testing.T) {
		bad := writeFile(t, filepath.Join(dir, "bad.xml"), "<PSGAnnotation><ScoredEvent>")
		_, err := sleepstage.Load(rec, bad, 30)
		require.ErrorIs(t, err, sleepstage.ErrParse)
	})

	t.Run("no stage events", func(t *testing.T) {
		empty := writeFile(t, filepath.Join(dir, "empty.xml"), annotationXML("30", testEvent{"SDO:Arousal", 10, 5}))
		_, err := sleepstage.Load(rec, empty, 30)
		require.ErrorIs(t, err, sleepstage.ErrValidation)
	})

	t.Run("annotations far past the signal", func(t *testing.T) {
		long := writeFile(t, filepath.Join(dir, "long.xml"), annotationXML("30",
			testEvent{"SDO:WakeState", 0, 60},
			testEvent{"SDO:RapidEyeMovementSleep", 60, 900},
		))
		_, err := sleepstage.Load(rec, long, 30)
		require.ErrorIs(t, err, sleepstage.ErrValidation)

		cfg := sleepstage.DefaultConfig()
		cfg.MaxEpochSkew = -1
		l, err := sleepstage.NewLoader(cfg)
		require.NoError(t, err)
		pkg, err := l.Load(rec, long)
		require.NoError(t, err)
		assert.Equal(t, []sleepstage.Stage{sleepstage.Wake, sleepstage.Wake}, pkg.Labels)
	})

	t.Run("no EEG channels", func(t *testing.T) {
		noEEG := writeRecording(t, filepath.Join(dir, "noeeg.edf"), 60, []testChannel{
			{Label: "EOG(L)", Rate: 5, Value: ramp(0)},
			{Label: "EMG", Rate: 10, Value: ramp(0)},
		})
		_, err := sleepstage.Load(noEEG, ann, 30)
		require.ErrorIs(t, err, sleepstage.ErrValidation)
	})

	t.Run("mixed EEG rates", func(t *testing.T) {
		mixed := writeRecording(t, filepath.Join(dir, "mixed.edf"), 60, []testChannel{
			{Label: "EEG C3-A2", Rate: 10, Value: ramp(0)},
			{Label: "EEG C4-A1", Rate: 20, Value: ramp(0)},
		})
		_, err := sleepstage.Load(mixed, ann, 30)
		require.ErrorIs(t, err, sleepstage.ErrValidation)
	})

	t.Run("not an EDF file", func(t *testing.T) {
		junk := writeFile(t, filepath.Join(dir, "junk.edf"), "definitely not EDF")
		_, err := sleepstage.Load(junk, ann, 30)
		require.Error(t, err)
		require.NotErrorIs(t, err, sleepstage.ErrNotFound)
	})

	t.Run("invalid epoch length", func(t *testing.T) {
		_, err := sleepstage.Load(rec, ann, -30)
		require.ErrorIs(t, err, sleepstage.ErrValidation)
	})
}

func TestLoadUnlabeled(t *testing.T) {
	dir := t.TempDir()
	rec := writeRecording(t, filepath.Join(dir, "H1.edf"), 100, psgChannels(0))

	l, err := sleepstage.NewLoader(sleepstage.DefaultConfig())
	require.NoError(t, err)

	pkg, err := l.LoadUnlabeled(rec)
	require.NoError(t, err)
	assert.Equal(t, "H1", pkg.ID)
	assert.Nil(t, pkg.Labels)
	assert.Equal(t, 4, pkg.Epochs())
	assert.Equal(t, 4, pkg.Tensors[sleepstage.EOG].Epochs)

	_, err = l.LoadUnlabeled(filepath.Join(dir, "H2.edf"))
	require.ErrorIs(t, err, sleepstage.ErrNotFound)

	_, err = l.LoadUnlabeled(dir)
	require.ErrorIs(t, err, sleepstage.ErrNotFound)
}
