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
	"strings"

	"github.com/dustin/go-humanize"
)

// StageCount is the number of epochs carrying one stage.
type StageCount struct {
	Stage   Stage
	Count   int
	Percent float64
}

// Distribution counts labels per stage. Stages with no epochs are omitted.
func Distribution(labels []Stage) []StageCount {
	var counts [NumStages]int
	for _, s := range labels {
		if s.Valid() {
			counts[s]++
		}
	}

	var dist []StageCount
	for s, n := range counts {
		if n == 0 {
			continue
		}
		dist = append(dist, StageCount{
			Stage:   Stage(s),
			Count:   n,
			Percent: float64(n) / float64(len(labels)) * 100,
		})
	}
	return dist
}

// FormatDistribution renders a distribution as "Wake: 1,204 (31.2%), ...".
func FormatDistribution(dist []StageCount) string {
	parts := make([]string, len(dist))
	for i, sc := range dist {
		parts[i] = fmt.Sprintf("%s: %s (%.1f%%)", sc.Stage, humanize.Comma(int64(sc.Count)), sc.Percent)
	}
	return strings.Join(parts, ", ")
}
