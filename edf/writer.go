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
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
)

// maxRecordBytes is the data record size recommended by the EDF standard.
const maxRecordBytes = 61440

// Writer writes EDF files.
type Writer struct {
	w           io.WriteSeeker
	hdr         *Header
	dataRecords int // Number of data records written so far.
}

// Create creates a new EDF writer that writes to the given writer.
func Create(w io.WriteSeeker, hdr Header) (*Writer, error) {
	hdr.DataRecords = -1 // Unknown number of data records (at this time).
	hdr.SignalCount = len(hdr.Signals)

	ew := &Writer{w: w, hdr: &hdr}

	if err := ew.writeHeader(); err != nil {
		return nil, fmt.Errorf("error writing header: %w", err)
	}

	return ew, nil
}

// Close finalizes the EDF file by updating the header with the total number of data records.
func (ew *Writer) Close() error {
	ew.hdr.DataRecords = ew.dataRecords
	if err := ew.writeHeader(); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}

	return nil
}

// WriteRecord writes a single data record to the EDF file.
func (ew *Writer) WriteRecord(signals [][]float64) error {
	if len(signals) != ew.hdr.SignalCount {
		return fmt.Errorf("expected %d signals, got %d", ew.hdr.SignalCount, len(signals))
	}

	var totalSamples int
	for i, signal := range signals {
		if len(signal) != ew.hdr.Signals[i].SamplesPerRecord {
			return fmt.Errorf("signal %d: expected %d samples, got %d", i, ew.hdr.Signals[i].SamplesPerRecord, len(signal))
		}
		totalSamples += len(signal)
	}

	if totalSamples*2 > maxRecordBytes {
		return fmt.Errorf("data record too large: %d bytes, max is %d bytes", totalSamples*2, maxRecordBytes)
	}

	// Appends always land after the last record, even if the header was just rewritten.
	pos := int64(ew.hdr.HeaderBytes) + int64(ew.dataRecords)*int64(totalSamples*2)
	if _, err := ew.w.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("error seeking to record: %w", err)
	}

	writer := bufio.NewWriter(ew.w)

	buf := make([]byte, 2)
	for i, signal := range signals {
		sig := ew.hdr.Signals[i]
		for _, sample := range signal {
			digitalValue := convertPhysicalToDigital(sample, sig.PhysicalMin, sig.PhysicalMax, sig.DigitalMin, sig.DigitalMax)
			binary.LittleEndian.PutUint16(buf, uint16(digitalValue))
			if _, err := writer.Write(buf); err != nil {
				return err
			}
		}
	}

	if err := writer.Flush(); err != nil {
		return err
	}

	ew.dataRecords++
	return nil
}

// WriteSignals splits continuous signals into data records and writes them.
// Every signal must hold a whole number of records, and all signals must
// cover the same number of records.
func (ew *Writer) WriteSignals(signals [][]float64) error {
	if len(signals) != ew.hdr.SignalCount {
		return fmt.Errorf("expected %d signals, got %d", ew.hdr.SignalCount, len(signals))
	}

	records := -1
	for i, signal := range signals {
		spr := ew.hdr.Signals[i].SamplesPerRecord
		if spr <= 0 || len(signal)%spr != 0 {
			return fmt.Errorf("signal %d: %d samples is not a multiple of %d samples per record", i, len(signal), spr)
		}
		if records >= 0 && len(signal)/spr != records {
			return fmt.Errorf("signal %d: covers %d records, expected %d", i, len(signal)/spr, records)
		}
		records = len(signal) / spr
	}

	record := make([][]float64, len(signals))
	for r := 0; r < records; r++ {
		for i, signal := range signals {
			spr := ew.hdr.Signals[i].SamplesPerRecord
			record[i] = signal[r*spr : (r+1)*spr]
		}
		if err := ew.WriteRecord(record); err != nil {
			return fmt.Errorf("error writing record %d: %w", r, err)
		}
	}

	return nil
}

// writeHeader writes the EDF header at the start of the underlying writer.
func (ew *Writer) writeHeader() error {
	if _, err := ew.w.Seek(0, io.SeekStart); err != nil {
		return err
	}

	hdr := ew.hdr
	hdr.HeaderBytes = 256 + (hdr.SignalCount * 256)

	writer := bufio.NewWriter(ew.w)
	put := func(width int, value string) {
		// bufio.Writer keeps the first error and reports it on Flush.
		_, _ = writer.WriteString(fmt.Sprintf("%-*s", width, value))
	}

	put(8, string(hdr.Version))
	put(80, hdr.PatientID)
	put(80, hdr.RecordingID)
	put(8, hdr.StartTime.Format("02.01.06"))
	put(8, hdr.StartTime.Format("15.04.05"))
	put(8, strconv.Itoa(hdr.HeaderBytes))
	put(44, "") // Reserved
	put(8, strconv.Itoa(hdr.DataRecords))
	put(8, formatRecordDuration(hdr.DataRecordDuration.Seconds()))
	put(4, strconv.Itoa(hdr.SignalCount))

	for _, signal := range hdr.Signals {
		put(16, signal.Label)
	}
	for _, signal := range hdr.Signals {
		put(80, signal.TransducerType)
	}
	for _, signal := range hdr.Signals {
		put(8, signal.PhysicalDimension)
	}
	for _, signal := range hdr.Signals {
		put(8, formatPhysicalValue(signal.PhysicalMin))
	}
	for _, signal := range hdr.Signals {
		put(8, formatPhysicalValue(signal.PhysicalMax))
	}
	for _, signal := range hdr.Signals {
		put(8, strconv.Itoa(signal.DigitalMin))
	}
	for _, signal := range hdr.Signals {
		put(8, strconv.Itoa(signal.DigitalMax))
	}
	for _, signal := range hdr.Signals {
		put(80, signal.Prefiltering)
	}
	for _, signal := range hdr.Signals {
		put(8, strconv.Itoa(signal.SamplesPerRecord))
	}
	for range hdr.Signals {
		put(32, "") // Reserved
	}

	return writer.Flush()
}

// convertPhysicalToDigital converts a physical value to a digital value using
// the calibration factors, clamped to the digital range.
func convertPhysicalToDigital(physical float64, pmin, pmax float64, dmin, dmax int) int16 {
	if pmax == pmin {
		return 0 // Avoid division by zero
	}
	digital := math.Round(((physical - pmin) * (float64(dmax - dmin)) / (pmax - pmin)) + float64(dmin))
	digital = math.Max(float64(dmin), math.Min(float64(dmax), digital))
	return int16(digital)
}

func formatPhysicalValue(val float64) string {
	// Try with 2 decimal places
	s := strconv.FormatFloat(val, 'f', 2, 64)
	if len(s) > 8 {
		// Fall back to no decimal
		s = strconv.FormatFloat(val, 'f', 0, 64)
	}
	return s
}

func formatRecordDuration(seconds float64) string {
	if seconds == math.Trunc(seconds) {
		return strconv.Itoa(int(seconds))
	}
	s := strconv.FormatFloat(seconds, 'f', -1, 64)
	if len(s) > 8 {
		s = s[:8]
	}
	return s
}
