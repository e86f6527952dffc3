// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package sleepstage

import "strconv"

// Stage is a sleep stage label. The numeric values are the class codes used
// for training.
type Stage int

const (
	Wake Stage = iota
	N1
	N2
	N3
	REM
)

// NumStages is the number of distinct stage labels.
const NumStages = 5

var stageNames = [NumStages]string{"Wake", "N1", "N2", "N3", "REM"}

func (s Stage) String() string {
	if s.Valid() {
		return stageNames[s]
	}
	return "Stage(" + strconv.Itoa(int(s)) + ")"
}

// Valid reports whether s is one of the five canonical stages.
func (s Stage) Valid() bool {
	return s >= Wake && s <= REM
}

// stageConcepts maps every recognized scored-event concept to its stage.
// Stage 4 is folded into N3 following the AASM rules.
var stageConcepts = map[string]Stage{
	// Sleep Domain Ontology
	"SDO:WakeState":                   Wake,
	"SDO:NonRapidEyeMovementSleep-N1": N1,
	"SDO:NonRapidEyeMovementSleep-N2": N2,
	"SDO:NonRapidEyeMovementSleep-N3": N3,
	"SDO:NonRapidEyeMovementSleep-N4": N3,
	"SDO:RapidEyeMovementSleep":       REM,

	// NSRR
	"Wake|0":          Wake,
	"Stage 1 sleep|1": N1,
	"Stage 2 sleep|2": N2,
	"Stage 3 sleep|3": N3,
	"Stage 4 sleep|4": N3,
	"REM sleep|5":     REM,
}

// StageForConcept returns the stage a scored-event concept denotes.
func StageForConcept(concept string) (Stage, bool) {
	s, ok := stageConcepts[concept]
	return s, ok
}
