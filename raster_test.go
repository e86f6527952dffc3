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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenPSG/sleepstage"
)

func TestRasterize(t *testing.T) {
	stages := []sleepstage.StageEvent{
		{Stage: sleepstage.Wake, Start: 0, Duration: 60},
		{Stage: sleepstage.N2, Start: 60, Duration: 120},
	}

	labels, err := sleepstage.Rasterize(stages, 180, 30)
	require.NoError(t, err)
	assert.Equal(t, []sleepstage.Stage{0, 0, 2, 2, 2, 2}, labels)
}

func TestRasterizeContiguousCoverage(t *testing.T) {
	// Events of varying whole-epoch lengths tiling [0, total).
	var stages []sleepstage.StageEvent
	var want []sleepstage.Stage
	start := 0.0
	for i, epochs := range []int{1, 3, 2, 5, 1, 4} {
		stage := sleepstage.Stage(i % sleepstage.NumStages)
		stages = append(stages, sleepstage.StageEvent{Stage: stage, Start: start, Duration: float64(epochs) * 30})
		for j := 0; j < epochs; j++ {
			want = append(want, stage)
		}
		start += float64(epochs) * 30
	}

	labels, err := sleepstage.Rasterize(stages, start, 30)
	require.NoError(t, err)
	assert.Len(t, labels, sleepstage.EpochCount(start, 30))
	assert.Equal(t, want, labels)
}

func TestRasterizeGapsAreWake(t *testing.T) {
	labels, err := sleepstage.Rasterize([]sleepstage.StageEvent{
		{Stage: sleepstage.N1, Start: 0, Duration: 30},
		{Stage: sleepstage.REM, Start: 90, Duration: 30},
	}, 150, 30)
	require.NoError(t, err)
	assert.Equal(t, []sleepstage.Stage{sleepstage.N1, sleepstage.Wake, sleepstage.Wake, sleepstage.REM, sleepstage.Wake}, labels)
}

func TestRasterizeLaterEventWins(t *testing.T) {
	labels, err := sleepstage.Rasterize([]sleepstage.StageEvent{
		{Stage: sleepstage.N2, Start: 0, Duration: 90},
		{Stage: sleepstage.N3, Start: 30, Duration: 30},
	}, 90, 30)
	require.NoError(t, err)
	assert.Equal(t, []sleepstage.Stage{sleepstage.N2, sleepstage.N3, sleepstage.N2}, labels)

	// Supplied the other way round, the long event covers the short one.
	labels, err = sleepstage.Rasterize([]sleepstage.StageEvent{
		{Stage: sleepstage.N3, Start: 30, Duration: 30},
		{Stage: sleepstage.N2, Start: 0, Duration: 90},
	}, 90, 30)
	require.NoError(t, err)
	assert.Equal(t, []sleepstage.Stage{sleepstage.N2, sleepstage.N2, sleepstage.N2}, labels)
}

func TestRasterizePartialEpochs(t *testing.T) {
	// A partial trailing epoch still gets a label, and an event touching
	// part of an epoch claims all of it.
	labels, err := sleepstage.Rasterize([]sleepstage.StageEvent{
		{Stage: sleepstage.N1, Start: 45, Duration: 10},
	}, 100, 30)
	require.NoError(t, err)
	assert.Equal(t, []sleepstage.Stage{sleepstage.Wake, sleepstage.N1, sleepstage.Wake, sleepstage.Wake}, labels)
}

func TestRasterizeClipsOverrun(t *testing.T) {
	labels, err := sleepstage.Rasterize([]sleepstage.StageEvent{
		{Stage: sleepstage.REM, Start: 30, Duration: 300},
		{Stage: sleepstage.N3, Start: 600, Duration: 30},
	}, 90, 30)
	require.NoError(t, err)
	assert.Equal(t, []sleepstage.Stage{sleepstage.Wake, sleepstage.REM, sleepstage.REM}, labels)

	labels, err = sleepstage.Rasterize(nil, 0, 30)
	require.NoError(t, err)
	assert.Empty(t, labels)
}

func TestRasterizeInvalidArguments(t *testing.T) {
	_, err := sleepstage.Rasterize(nil, 90, 0)
	require.ErrorIs(t, err, sleepstage.ErrValidation)

	_, err = sleepstage.Rasterize(nil, -1, 30)
	require.ErrorIs(t, err, sleepstage.ErrValidation)
}

func TestEpochCount(t *testing.T) {
	assert.Equal(t, 6, sleepstage.EpochCount(180, 30))
	assert.Equal(t, 7, sleepstage.EpochCount(180.5, 30))
	assert.Equal(t, 1, sleepstage.EpochCount(1, 30))
	assert.Zero(t, sleepstage.EpochCount(0, 30))
	assert.Zero(t, sleepstage.EpochCount(30, 0))
}

func TestCheckCoverage(t *testing.T) {
	c := sleepstage.CheckCoverage([]sleepstage.StageEvent{
		{Stage: sleepstage.N2, Start: 60, Duration: 120},
		{Stage: sleepstage.Wake, Start: 0, Duration: 60},
	}, 180)
	assert.True(t, c.Valid())
	assert.Equal(t, 180.0, c.AnnotatedEnd)
	assert.InDelta(t, 100, c.Percent, 1e-9)

	c = sleepstage.CheckCoverage([]sleepstage.StageEvent{
		{Stage: sleepstage.Wake, Start: 0, Duration: 60},
		{Stage: sleepstage.N1, Start: 90, Duration: 60},
		{Stage: sleepstage.N2, Start: 120, Duration: 60},
	}, 360)
	assert.False(t, c.Valid())
	assert.Equal(t, []sleepstage.Interval{{Start: 60, End: 90}}, c.Gaps)
	assert.Equal(t, []sleepstage.Interval{{Start: 120, End: 150}}, c.Overlaps)
	assert.Equal(t, 30.0, c.Overlaps[0].Duration())
	assert.InDelta(t, 50, c.Percent, 1e-9)

	assert.False(t, sleepstage.CheckCoverage(nil, 100).Valid())
}

func TestStageNames(t *testing.T) {
	assert.Equal(t, "Wake", sleepstage.Wake.String())
	assert.Equal(t, "REM", sleepstage.REM.String())
	assert.Equal(t, "Stage(9)", sleepstage.Stage(9).String())
	assert.False(t, sleepstage.Stage(-1).Valid())

	s, ok := sleepstage.StageForConcept("Stage 4 sleep|4")
	assert.True(t, ok)
	assert.Equal(t, sleepstage.N3, s)

	_, ok = sleepstage.StageForConcept("Arousal|Arousal ()")
	assert.False(t, ok)
}

func TestDistribution(t *testing.T) {
	dist := sleepstage.Distribution([]sleepstage.Stage{0, 2, 2, 2, 4, 4, 2, 0})
	assert.Equal(t, []sleepstage.StageCount{
		{Stage: sleepstage.Wake, Count: 2, Percent: 25},
		{Stage: sleepstage.N2, Count: 4, Percent: 50},
		{Stage: sleepstage.REM, Count: 2, Percent: 25},
	}, dist)
	assert.Equal(t, "Wake: 2 (25.0%), N2: 4 (50.0%), REM: 2 (25.0%)", sleepstage.FormatDistribution(dist))

	assert.Empty(t, sleepstage.Distribution(nil))
}
