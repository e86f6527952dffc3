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
	"cmp"
	"slices"
)

// Interval is a span of time in seconds.
type Interval struct {
	Start float64
	End   float64
}

// Duration returns the length of the interval.
func (i Interval) Duration() float64 {
	return i.End - i.Start
}

// Coverage describes how completely stage events cover a recording.
type Coverage struct {
	AnnotatedEnd float64    // End of the last stage event, in seconds
	Duration     float64    // Recording duration, in seconds
	Percent      float64    // AnnotatedEnd as a percentage of Duration
	Gaps         []Interval // Unscored spans between consecutive events
	Overlaps     []Interval // Spans scored by two consecutive events
	Events       int        // Number of stage events
}

// Valid reports whether the events are contiguous and cover at least 99% of
// the recording.
func (c Coverage) Valid() bool {
	return c.Events > 0 && len(c.Gaps) == 0 && len(c.Overlaps) == 0 && c.Percent >= 99
}

// CheckCoverage compares stage events against the recording duration.
// Only consecutive events (ordered by Start) are compared.
func CheckCoverage(stages []StageEvent, duration float64) Coverage {
	c := Coverage{Duration: duration, Events: len(stages)}
	if len(stages) == 0 {
		return c
	}

	sorted := slices.Clone(stages)
	slices.SortStableFunc(sorted, func(a, b StageEvent) int {
		return cmp.Compare(a.Start, b.Start)
	})

	c.AnnotatedEnd = sorted[len(sorted)-1].End()
	for i := 0; i < len(sorted)-1; i++ {
		end, next := sorted[i].End(), sorted[i+1].Start
		switch {
		case next > end:
			c.Gaps = append(c.Gaps, Interval{Start: end, End: next})
		case next < end:
			c.Overlaps = append(c.Overlaps, Interval{Start: next, End: end})
		}
	}

	if duration > 0 {
		c.Percent = c.AnnotatedEnd / duration * 100
	}
	return c
}
