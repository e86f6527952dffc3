// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package edf

import (
	"strings"
	"time"
)

type Version string

const (
	// Version0 represents the version of the EDF/EDF+ standard.
	Version0 Version = "0"
)

// AnnotationsLabel is the label EDF+ uses for its embedded annotation signal.
const AnnotationsLabel = "EDF Annotations"

// Header represents the EDF/EDF+ file header.
type Header struct {
	Version            Version       // Version of the EDF/EDF+ standard (usually "0")
	PatientID          string        // Identification of the patient
	RecordingID        string        // Identification of the recording session
	StartTime          time.Time     // Start date of the recording
	HeaderBytes        int           // Number of bytes in the header
	DataRecordDuration time.Duration // Duration of a single data record in seconds
	DataRecords        int           // Number of data records, -1 if unknown
	SignalCount        int           // Number of signals in each data record
	Signals            []Signal      // Details of each signal
}

// Signal represents the characteristics of each signal in the EDF/EDF+ file.
type Signal struct {
	Label             string  // Label of the signal (e.g., EEG Fpz-Cz)
	TransducerType    string  // Type of transducer used
	PhysicalDimension string  // Physical dimension (e.g., uV, mV)
	PhysicalMin       float64 // Minimum physical value
	PhysicalMax       float64 // Maximum physical value
	DigitalMin        int     // Minimum digital value
	DigitalMax        int     // Maximum digital value
	Prefiltering      string  // Pre-filtering information
	SamplesPerRecord  int     // Number of samples in each data record for this signal
	Reserved          string  // Reserved for future use
}

// Duration returns the total duration covered by the data records.
func (h *Header) Duration() time.Duration {
	if h.DataRecords <= 0 {
		return 0
	}
	return time.Duration(h.DataRecords) * h.DataRecordDuration
}

// Labels returns the signal labels in file order.
func (h *Header) Labels() []string {
	labels := make([]string, len(h.Signals))
	for i, sig := range h.Signals {
		labels[i] = sig.Label
	}
	return labels
}

// SampleRate returns the sampling rate in Hz of the signal at index i, or 0
// if the index or record duration is invalid.
func (h *Header) SampleRate(i int) float64 {
	if i < 0 || i >= len(h.Signals) || h.DataRecordDuration <= 0 {
		return 0
	}
	return float64(h.Signals[i].SamplesPerRecord) / h.DataRecordDuration.Seconds()
}

// IsAnnotations reports whether the signal carries EDF+ annotations rather
// than samples.
func (s Signal) IsAnnotations() bool {
	return strings.EqualFold(strings.TrimSpace(s.Label), AnnotationsLabel)
}
