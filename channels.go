// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package sleepstage

import "strings"

// Group is a category of channels sharing a physiological meaning.
type Group string

const (
	EEG Group = "eeg"
	EOG Group = "eog"
	EMG Group = "emg"
)

// Groups lists every signal group in output order.
var Groups = []Group{EEG, EOG, EMG}

// Valid reports whether g is a known signal group.
func (g Group) Valid() bool {
	switch g {
	case EEG, EOG, EMG:
		return true
	}
	return false
}

// electrodeCodes are 10-20 positions that identify an EEG derivation even
// when the label does not say "EEG". The occipital codes need a trailing
// dash, so a bare "O2" or "SaO2" label does not match.
var electrodeCodes = []string{"C3", "C4", "F3", "F4", "O1-", "O2-", "CZ", "FZ", "PZ"}

// ChannelGroups holds channel labels partitioned by signal group. A label
// appears in at most one group.
type ChannelGroups struct {
	EEG []string
	EOG []string
	EMG []string
}

// Get returns the labels assigned to g.
func (cg ChannelGroups) Get(g Group) []string {
	switch g {
	case EEG:
		return cg.EEG
	case EOG:
		return cg.EOG
	case EMG:
		return cg.EMG
	}
	return nil
}

// Present returns the groups that have at least one channel, in Groups order.
func (cg ChannelGroups) Present() []Group {
	var present []Group
	for _, g := range Groups {
		if len(cg.Get(g)) > 0 {
			present = append(present, g)
		}
	}
	return present
}

// ClassifyChannels assigns channel labels to signal groups by
// case-insensitive substring match. EOG is matched first, then EMG, then
// EEG, so a label such as "EMG-EEG-ch1" is EMG. Labels matching no group
// (respiration, SpO2, ECG, ...) are dropped.
func ClassifyChannels(labels []string) ChannelGroups {
	var cg ChannelGroups
	for _, label := range labels {
		g, ok := GroupOf(label)
		if !ok {
			continue
		}
		switch g {
		case EEG:
			cg.EEG = append(cg.EEG, label)
		case EOG:
			cg.EOG = append(cg.EOG, label)
		case EMG:
			cg.EMG = append(cg.EMG, label)
		}
	}
	return cg
}

// GroupOf returns the signal group a single channel label belongs to.
func GroupOf(label string) (Group, bool) {
	switch upper := strings.ToUpper(label); {
	case strings.Contains(upper, "EOG"):
		return EOG, true
	case strings.Contains(upper, "EMG") || strings.Contains(upper, "CHIN"):
		return EMG, true
	case isEEG(upper):
		return EEG, true
	}
	return "", false
}

func isEEG(upper string) bool {
	if strings.Contains(upper, "EEG") && !strings.Contains(upper, "SAO") && !strings.Contains(upper, "SPO") {
		return true
	}
	for _, code := range electrodeCodes {
		if strings.Contains(upper, code) {
			return true
		}
	}
	return false
}
