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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/OpenPSG/sleepstage/edf"
)

type testChannel struct {
	Label string
	Rate  int                 // Samples per one second data record
	Value func(i int) float64 // Physical value of sample i
}

func ramp(offset float64) func(int) float64 {
	return func(i int) float64 { return offset + float64(i%400) }
}

// psgChannels is a typical montage: two EEG and two EOG derivations, chin
// EMG, and auxiliary channels that must be ignored.
func psgChannels(offset float64) []testChannel {
	return []testChannel{
		{Label: "EEG C3-A2", Rate: 10, Value: ramp(offset)},
		{Label: "SaO2", Rate: 1, Value: func(int) float64 { return 97 }},
		{Label: "EOG(L)", Rate: 5, Value: ramp(offset + 1)},
		{Label: "EEG(sec) C4-A1", Rate: 10, Value: ramp(offset + 2)},
		{Label: "EOG(R)", Rate: 5, Value: ramp(offset + 3)},
		{Label: "EMG Chin", Rate: 10, Value: ramp(offset + 4)},
		{Label: "ECG", Rate: 10, Value: func(int) float64 { return 0 }},
	}
}

// writeRecording writes an EDF file of the given length in seconds using one
// second data records.
func writeRecording(t *testing.T, path string, seconds int, channels []testChannel) string {
	t.Helper()

	hdr := edf.Header{
		Version:            edf.Version0,
		PatientID:          "X X X X",
		RecordingID:        filepath.Base(path),
		StartTime:          time.Date(2024, time.February, 10, 22, 30, 0, 0, time.UTC),
		DataRecordDuration: time.Second,
	}
	signals := make([][]float64, len(channels))
	for k, ch := range channels {
		hdr.Signals = append(hdr.Signals, edf.Signal{
			Label:             ch.Label,
			PhysicalDimension: "uV",
			PhysicalMin:       -1000,
			PhysicalMax:       1000,
			DigitalMin:        -32768,
			DigitalMax:        32767,
			SamplesPerRecord:  ch.Rate,
		})
		signals[k] = make([]float64, seconds*ch.Rate)
		for i := range signals[k] {
			signals[k][i] = ch.Value(i)
		}
	}

	f, err := os.Create(path)
	require.NoError(t, err)
	ew, err := edf.Create(f, hdr)
	require.NoError(t, err)
	require.NoError(t, ew.WriteSignals(signals))
	require.NoError(t, ew.Close())
	require.NoError(t, f.Close())

	return path
}

type testEvent struct {
	Concept  string
	Start    float64
	Duration float64
}

// annotationXML renders a Compumedics style annotation document. An empty
// epochLength omits the element.
func annotationXML(epochLength string, events ...testEvent) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="no"?>` + "\n")
	b.WriteString("<PSGAnnotation>\n<SoftwareVersion>Compumedics</SoftwareVersion>\n")
	if epochLength != "" {
		fmt.Fprintf(&b, "<EpochLength>%s</EpochLength>\n", epochLength)
	}
	b.WriteString("<ScoredEvents>\n")
	for _, e := range events {
		fmt.Fprintf(&b, "<ScoredEvent><EventType>Stages|Stages</EventType><EventConcept>%s</EventConcept><Start>%g</Start><Duration>%g</Duration></ScoredEvent>\n",
			e.Concept, e.Start, e.Duration)
	}
	b.WriteString("</ScoredEvents>\n</PSGAnnotation>\n")
	return b.String()
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// wakeThenN2 scores 0-60 s as Wake and 60-180 s as N2.
var wakeThenN2 = []testEvent{
	{Concept: "SDO:WakeState", Start: 0, Duration: 60},
	{Concept: "SDO:NonRapidEyeMovementSleep-N2", Start: 60, Duration: 120},
}

// corruptSamplesPerRecord overwrites the samples per record field of the
// given signals in an EDF header.
func corruptSamplesPerRecord(t *testing.T, path string, signalCount int, value string, signals ...int) {
	t.Helper()

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()

	// Label through prefiltering take 216 bytes per signal.
	base := int64(256 + signalCount*216)
	for _, i := range signals {
		_, err := f.WriteAt([]byte(fmt.Sprintf("%-8s", value)), base+int64(i)*8)
		require.NoError(t, err)
	}
}
