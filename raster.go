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
	"fmt"
	"math"
)

// EpochCount returns the number of epochs needed to cover duration seconds,
// counting a trailing partial epoch as a whole one.
func EpochCount(duration, epochLength float64) int {
	if duration <= 0 || epochLength <= 0 {
		return 0
	}
	return int(math.Ceil(duration / epochLength))
}

// Rasterize converts stage events into one label per epoch over
// [0, totalDuration). Epochs not covered by any event are Wake. Events are
// applied in order, so a later event overwrites an earlier one where they
// overlap; pass events sorted by Start for chronological precedence.
// Indices past the last epoch are ignored.
func Rasterize(stages []StageEvent, totalDuration, epochLength float64) ([]Stage, error) {
	if epochLength <= 0 || math.IsNaN(epochLength) || math.IsInf(epochLength, 0) {
		return nil, fmt.Errorf("%w: epoch length must be positive, got %v", ErrValidation, epochLength)
	}
	if totalDuration < 0 || math.IsNaN(totalDuration) || math.IsInf(totalDuration, 0) {
		return nil, fmt.Errorf("%w: total duration must be finite and >= 0, got %v", ErrValidation, totalDuration)
	}

	labels := make([]Stage, EpochCount(totalDuration, epochLength))

	for _, s := range stages {
		first := max(int(math.Floor(s.Start/epochLength)), 0)
		last := min(int(math.Ceil(s.End()/epochLength)), len(labels))
		for i := first; i < last; i++ {
			labels[i] = s.Stage
		}
	}

	return labels, nil
}
