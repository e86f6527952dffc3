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
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"
)

// Event is one scored event from an annotation file. Stage and non-stage
// events (arousals, desaturations, ...) are both kept.
type Event struct {
	Concept      string   // Event concept identifier, e.g. "SDO:WakeState"
	Type         string   // Event type, empty if absent
	Start        float64  // Onset in seconds from the start of the recording
	Duration     float64  // Duration in seconds
	Text         string   // Free text, empty if absent
	Desaturation *float64 // Desaturation in percent, nil if absent
	SpO2Nadir    *float64 // Lowest SpO2 in percent, nil if absent
}

// StageEvent is a scored interval carrying a sleep stage.
type StageEvent struct {
	Stage    Stage
	Start    float64 // Seconds from the start of the recording
	Duration float64 // Seconds, always > 0
}

// End returns the time in seconds at which the interval ends.
func (e StageEvent) End() float64 {
	return e.Start + e.Duration
}

// AnnotationSet is the parsed content of one annotation file.
type AnnotationSet struct {
	Events              []Event      // Every complete scored event, in document order
	Stages              []StageEvent // Stage events, sorted by Start
	EpochLength         float64      // Epoch length in seconds
	EpochLengthDeclared bool         // Whether the file declared EpochLength
}

// End returns the end of the last stage event, or 0 if there are none.
func (a *AnnotationSet) End() float64 {
	var end float64
	for _, s := range a.Stages {
		end = max(end, s.End())
	}
	return end
}

// scoredEvent mirrors a ScoredEvent element. Pointers distinguish absent
// children from empty ones.
type scoredEvent struct {
	EventType    *string `xml:"EventType"`
	EventConcept *string `xml:"EventConcept"`
	Start        *string `xml:"Start"`
	Duration     *string `xml:"Duration"`
	Text         *string `xml:"Text"`
	Desaturation *string `xml:"Desaturation"`
	SpO2Nadir    *string `xml:"SpO2Nadir"`
}

// ParseAnnotations parses the annotation file at path.
func ParseAnnotations(path string) (*AnnotationSet, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: annotation file %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("error opening annotation file: %w", err)
	}
	defer f.Close()

	set, err := DecodeAnnotations(f)
	if err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", path, err)
	}
	return set, nil
}

// DecodeAnnotations parses an annotation document. ScoredEvent and
// EpochLength elements are recognized at any depth. Events missing a
// concept, start or duration are skipped; events whose concept is not a
// sleep stage are kept in Events only.
func DecodeAnnotations(r io.Reader) (*AnnotationSet, error) {
	set := &AnnotationSet{EpochLength: DefaultEpochLength}

	dec := xml.NewDecoder(r)
	// Some scoring software declares Latin-1 or Windows-1252.
	dec.CharsetReader = charset.NewReaderLabel
	sawRoot := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		sawRoot = true

		switch start.Name.Local {
		case "EpochLength":
			var text string
			if err := dec.DecodeElement(&text, &start); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrParse, err)
			}
			// The first declaration wins.
			if set.EpochLengthDeclared {
				continue
			}
			length, err := parseSeconds(text)
			if err != nil || length <= 0 {
				return nil, fmt.Errorf("%w: invalid EpochLength %q", ErrParse, text)
			}
			set.EpochLength = length
			set.EpochLengthDeclared = true

		case "ScoredEvent":
			var raw scoredEvent
			if err := dec.DecodeElement(&raw, &start); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrParse, err)
			}
			event, ok, err := raw.event()
			if err != nil {
				return nil, fmt.Errorf("%w: scored event %d: %v", ErrParse, len(set.Events)+1, err)
			}
			if !ok {
				continue
			}
			set.Events = append(set.Events, event)

			stage, known := StageForConcept(event.Concept)
			if !known || event.Start < 0 || event.Duration <= 0 {
				continue
			}
			set.Stages = append(set.Stages, StageEvent{
				Stage:    stage,
				Start:    event.Start,
				Duration: event.Duration,
			})
		}
	}

	if !sawRoot {
		return nil, fmt.Errorf("%w: document has no root element", ErrParse)
	}

	slices.SortStableFunc(set.Stages, func(a, b StageEvent) int {
		return cmp.Compare(a.Start, b.Start)
	})

	return set, nil
}

// event converts the raw element. It reports false when a required child
// is missing or empty.
func (se *scoredEvent) event() (Event, bool, error) {
	concept := trimmed(se.EventConcept)
	startText := trimmed(se.Start)
	durationText := trimmed(se.Duration)
	if concept == "" || startText == "" || durationText == "" {
		return Event{}, false, nil
	}

	start, err := parseSeconds(startText)
	if err != nil {
		return Event{}, false, fmt.Errorf("invalid Start %q", startText)
	}
	duration, err := parseSeconds(durationText)
	if err != nil {
		return Event{}, false, fmt.Errorf("invalid Duration %q", durationText)
	}

	event := Event{
		Concept:  concept,
		Type:     trimmed(se.EventType),
		Start:    start,
		Duration: duration,
	}
	if se.Text != nil {
		event.Text = *se.Text
	}
	if event.Desaturation, err = optionalFloat(se.Desaturation); err != nil {
		return Event{}, false, fmt.Errorf("invalid Desaturation: %v", err)
	}
	if event.SpO2Nadir, err = optionalFloat(se.SpO2Nadir); err != nil {
		return Event{}, false, fmt.Errorf("invalid SpO2Nadir: %v", err)
	}

	return event, true, nil
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// parseSeconds parses a finite decimal number.
func parseSeconds(text string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %q", text)
	}
	return v, nil
}

func optionalFloat(s *string) (*float64, error) {
	text := trimmed(s)
	if text == "" {
		return nil, nil
	}
	v, err := parseSeconds(text)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
