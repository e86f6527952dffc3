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
	"os"
	"strconv"
	"strings"
	"time"
)

// Reader reads EDF/EDF+ files.
type Reader struct {
	r   io.ReadSeeker
	hdr *Header
}

// Open opens an EDF/EDF+ file for reading.
func Open(r io.ReadSeeker) (*Reader, error) {
	reader := bufio.NewReader(r)

	b := make([]byte, 256)
	if _, err := io.ReadFull(reader, b); err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}

	hdr := &Header{}
	hdr.Version = Version(strings.TrimSpace(string(b[0:8])))
	hdr.PatientID = strings.TrimSpace(string(b[8:88]))
	hdr.RecordingID = strings.TrimSpace(string(b[88:168]))

	startTime, err := parseStartTime(string(b[168:176]), string(b[176:184]))
	if err != nil {
		return nil, err
	}
	hdr.StartTime = startTime

	if hdr.HeaderBytes, err = strconv.Atoi(strings.TrimSpace(string(b[184:192]))); err != nil {
		return nil, fmt.Errorf("error parsing header bytes: %w", err)
	}

	if hdr.DataRecords, err = strconv.Atoi(strings.TrimSpace(string(b[236:244]))); err != nil {
		return nil, fmt.Errorf("error parsing number of data records: %w", err)
	}

	hdr.DataRecordDuration, err = time.ParseDuration(strings.TrimSpace(string(b[244:252])) + "s")
	if err != nil {
		return nil, fmt.Errorf("error parsing data record duration: %w", err)
	}

	if hdr.SignalCount, err = strconv.Atoi(strings.TrimSpace(string(b[252:256]))); err != nil {
		return nil, fmt.Errorf("error parsing signal count: %w", err)
	}
	if hdr.SignalCount < 0 {
		return nil, fmt.Errorf("invalid signal count: %d", hdr.SignalCount)
	}
	if want := 256 * (hdr.SignalCount + 1); hdr.HeaderBytes != want {
		return nil, fmt.Errorf("invalid header size: %d bytes for %d signals, expected %d",
			hdr.HeaderBytes, hdr.SignalCount, want)
	}

	// The signal headers are stored field by field, each field repeated for
	// every signal before the next field starts.
	hdr.Signals = make([]Signal, hdr.SignalCount)
	fields := []struct {
		width int
		set   func(s *Signal, b []byte)
	}{
		{16, func(s *Signal, b []byte) { s.Label = strings.TrimSpace(string(b)) }},
		{80, func(s *Signal, b []byte) { s.TransducerType = strings.TrimSpace(string(b)) }},
		{8, func(s *Signal, b []byte) { s.PhysicalDimension = strings.TrimSpace(string(b)) }},
		{8, func(s *Signal, b []byte) { s.PhysicalMin = parseFloat(b) }},
		{8, func(s *Signal, b []byte) { s.PhysicalMax = parseFloat(b) }},
		{8, func(s *Signal, b []byte) { s.DigitalMin = parseInt(b) }},
		{8, func(s *Signal, b []byte) { s.DigitalMax = parseInt(b) }},
		{80, func(s *Signal, b []byte) { s.Prefiltering = strings.TrimSpace(string(b)) }},
		{8, func(s *Signal, b []byte) { s.SamplesPerRecord = parseInt(b) }},
		{32, func(s *Signal, b []byte) { s.Reserved = strings.TrimSpace(string(b)) }},
	}
	for _, field := range fields {
		b := make([]byte, field.width)
		for i := range hdr.Signals {
			if _, err := io.ReadFull(reader, b); err != nil {
				return nil, fmt.Errorf("error reading signal headers: %w", err)
			}
			field.set(&hdr.Signals[i], b)
		}
	}
	for i, sig := range hdr.Signals {
		if sig.SamplesPerRecord < 0 {
			return nil, fmt.Errorf("signal %d (%s): invalid samples per record: %d", i, sig.Label, sig.SamplesPerRecord)
		}
	}

	er := &Reader{r: r, hdr: hdr}

	available, err := er.countRecords()
	if err != nil {
		return nil, err
	}
	// Recorders that were interrupted leave the record count as -1.
	if hdr.DataRecords < 0 {
		hdr.DataRecords = available
	} else if er.recordSize() > 0 && hdr.DataRecords > available {
		return nil, fmt.Errorf("header declares %d data records, file holds %d", hdr.DataRecords, available)
	}

	return er, nil
}

// Header returns the parsed file header.
func (er *Reader) Header() *Header {
	return er.hdr
}

// ReadSignal reads every sample of the signal at signalIndex as physical values.
func (er *Reader) ReadSignal(signalIndex int) ([]float64, error) {
	sr, err := er.Signal(signalIndex)
	if err != nil {
		return nil, err
	}

	data := make([]float64, er.hdr.DataRecords*sr.samplesPerRecord)
	n, err := sr.Read(data)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return data[:n], nil
}

func (er *Reader) recordSize() int {
	size := 0
	for _, sig := range er.hdr.Signals {
		size += sig.SamplesPerRecord * 2
	}
	return size
}

func (er *Reader) countRecords() (int, error) {
	end, err := er.r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("error seeking to end of file: %w", err)
	}
	size := er.recordSize()
	if size == 0 || end <= int64(er.hdr.HeaderBytes) {
		return 0, nil
	}
	return int((end - int64(er.hdr.HeaderBytes)) / int64(size)), nil
}

// File is a Reader backed by a file on disk.
type File struct {
	*Reader
	f *os.File
}

// OpenFile opens the named EDF/EDF+ file for reading.
func OpenFile(name string) (*File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	er, err := Open(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("error opening %s: %w", name, err)
	}

	return &File{Reader: er, f: f}, nil
}

// Close closes the underlying file.
func (ef *File) Close() error {
	return ef.f.Close()
}

// SignalReader reads continuous signal data from an EDF/EDF+ file.
type SignalReader struct {
	r                io.ReadSeeker
	hdr              *Header
	signalIndex      int    // Index of the signal to read
	currentRecord    int    // Current record being processed
	currentSample    int    // Current sample in the record
	recordSize       int    // Total size of one data record
	signalOffset     int    // Byte offset of the signal in a record
	samplesPerRecord int    // Number of samples per record for the signal
	buf              []byte // Raw samples of the current record
	loaded           int    // Record held in buf, -1 if none
}

// Signal creates a new SignalReader for a specified signal index.
func (er *Reader) Signal(signalIndex int) (*SignalReader, error) {
	if signalIndex < 0 || signalIndex >= len(er.hdr.Signals) {
		return nil, fmt.Errorf("signal index out of range")
	}

	signalOffset := 0
	for _, sig := range er.hdr.Signals[:signalIndex] {
		signalOffset += sig.SamplesPerRecord * 2
	}

	samplesPerRecord := er.hdr.Signals[signalIndex].SamplesPerRecord

	return &SignalReader{
		r:                er.r,
		hdr:              er.hdr,
		signalIndex:      signalIndex,
		recordSize:       er.recordSize(),
		signalOffset:     signalOffset,
		samplesPerRecord: samplesPerRecord,
		buf:              make([]byte, samplesPerRecord*2),
		loaded:           -1,
	}, nil
}

// Read fills the provided float64 slice with the physical values from the signal.
func (sr *SignalReader) Read(data []float64) (int, error) {
	signal := sr.hdr.Signals[sr.signalIndex]

	n := 0
	for n < len(data) {
		if sr.currentRecord >= sr.hdr.DataRecords || sr.samplesPerRecord == 0 {
			return n, io.EOF // End of data records
		}

		if sr.loaded != sr.currentRecord {
			if err := sr.loadRecord(); err != nil {
				return n, err
			}
		}

		for sr.currentSample < sr.samplesPerRecord && n < len(data) {
			digitalValue := int16(binary.LittleEndian.Uint16(sr.buf[sr.currentSample*2:]))
			data[n] = convertDigitalToPhysical(digitalValue, signal.DigitalMin, signal.DigitalMax, signal.PhysicalMin, signal.PhysicalMax)
			n++
			sr.currentSample++
		}

		// Move to the next record
		if sr.currentSample >= sr.samplesPerRecord {
			sr.currentSample = 0
			sr.currentRecord++
		}
	}

	return n, nil
}

// loadRecord reads this signal's slice of the current data record.
func (sr *SignalReader) loadRecord() error {
	pos := int64(sr.hdr.HeaderBytes) + int64(sr.currentRecord)*int64(sr.recordSize) + int64(sr.signalOffset)
	if _, err := sr.r.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("error seeking to position: %w", err)
	}

	if _, err := io.ReadFull(sr.r, sr.buf); err != nil {
		return fmt.Errorf("error reading sample data: %w", err)
	}
	sr.loaded = sr.currentRecord

	return nil
}

func parseStartTime(dateField, timeField string) (time.Time, error) {
	startDate, err := time.Parse("02.01.06", strings.TrimSpace(dateField))
	if err != nil {
		return time.Time{}, fmt.Errorf("error parsing start date: %w", err)
	}
	startTime, err := time.Parse("15.04.05", strings.TrimSpace(timeField))
	if err != nil {
		return time.Time{}, fmt.Errorf("error parsing start time: %w", err)
	}
	return time.Date(startDate.Year(), startDate.Month(), startDate.Day(),
		startTime.Hour(), startTime.Minute(), startTime.Second(), 0, time.UTC), nil
}

// convertDigitalToPhysical converts a digital value from the data record to a physical value using the calibration factors.
func convertDigitalToPhysical(digital int16, dmin, dmax int, pmin, pmax float64) float64 {
	if dmax == dmin {
		return 0 // Avoid division by zero
	}
	return pmin + (float64(digital)-float64(dmin))*(pmax-pmin)/float64(dmax-dmin)
}

func parseFloat(b []byte) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0.0
	}
	return f
}

func parseInt(b []byte) int {
	i, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0
	}
	return i
}
