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

// Waveform is continuous signal data for one signal group. It is either a
// SingleChannel or a MultiChannel.
type Waveform interface {
	// NumChannels returns the number of channels in the waveform.
	NumChannels() int

	traces() [][]float64
}

// SingleChannel is the samples of one channel.
type SingleChannel []float64

// MultiChannel is the samples of several channels, one slice per channel.
type MultiChannel [][]float64

func (w SingleChannel) NumChannels() int { return 1 }

func (w SingleChannel) traces() [][]float64 { return [][]float64{w} }

func (w MultiChannel) NumChannels() int { return len(w) }

func (w MultiChannel) traces() [][]float64 { return w }

// EpochTensor holds fixed-length epochs of a multi-channel signal, stored
// row-major with axes (epoch, channel, sample).
type EpochTensor struct {
	Epochs   int       // Number of epochs
	Channels int       // Channels per epoch
	Samples  int       // Samples per channel per epoch
	Data     []float64 // Epochs*Channels*Samples values
}

// NewEpochTensor allocates a zeroed tensor.
func NewEpochTensor(epochs, channels, samples int) *EpochTensor {
	return &EpochTensor{
		Epochs:   epochs,
		Channels: channels,
		Samples:  samples,
		Data:     make([]float64, epochs*channels*samples),
	}
}

// At returns a single sample.
func (t *EpochTensor) At(epoch, channel, sample int) float64 {
	return t.Data[(epoch*t.Channels+channel)*t.Samples+sample]
}

// Trace returns the samples of one channel in one epoch. The slice aliases
// the tensor.
func (t *EpochTensor) Trace(epoch, channel int) []float64 {
	off := (epoch*t.Channels + channel) * t.Samples
	return t.Data[off : off+t.Samples : off+t.Samples]
}

// Epoch returns every channel of one epoch, channel after channel. The
// slice aliases the tensor.
func (t *EpochTensor) Epoch(epoch int) []float64 {
	stride := t.Channels * t.Samples
	return t.Data[epoch*stride : (epoch+1)*stride : (epoch+1)*stride]
}

// Head returns a view of the first n epochs.
func (t *EpochTensor) Head(n int) *EpochTensor {
	n = max(0, min(n, t.Epochs))
	return &EpochTensor{
		Epochs:   n,
		Channels: t.Channels,
		Samples:  t.Samples,
		Data:     t.Data[:n*t.Channels*t.Samples],
	}
}

// Clone returns a deep copy of t.
func (t *EpochTensor) Clone() *EpochTensor {
	c := *t
	c.Data = append([]float64(nil), t.Data...)
	return &c
}

// SameShape reports whether two tensors agree on every axis but the epoch axis.
func (t *EpochTensor) SameShape(o *EpochTensor) bool {
	return t.Channels == o.Channels && t.Samples == o.Samples
}

// Append adds the epochs of o after those of t.
func (t *EpochTensor) Append(o *EpochTensor) error {
	if !t.SameShape(o) {
		return fmt.Errorf("%w: cannot append %dx%d epochs to %dx%d epochs",
			ErrValidation, o.Channels, o.Samples, t.Channels, t.Samples)
	}
	t.Data = append(t.Data, o.Data...)
	t.Epochs += o.Epochs
	return nil
}

// SamplesPerEpoch returns the number of samples in one epoch at rate Hz.
func SamplesPerEpoch(epochLength, rate float64) int {
	return int(math.Round(epochLength * rate))
}

// Segment cuts a continuous waveform sampled at rate Hz into epochs of
// epochLength seconds. The result always has exactly epochs epochs: samples
// beyond epochs*SamplesPerEpoch are dropped and missing samples are zero.
func Segment(w Waveform, rate, epochLength float64, epochs int) (*EpochTensor, error) {
	if w == nil || w.NumChannels() == 0 {
		return nil, fmt.Errorf("%w: waveform has no channels", ErrValidation)
	}
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil, fmt.Errorf("%w: sampling rate must be positive, got %v", ErrValidation, rate)
	}
	if epochLength <= 0 || math.IsNaN(epochLength) || math.IsInf(epochLength, 0) {
		return nil, fmt.Errorf("%w: epoch length must be positive, got %v", ErrValidation, epochLength)
	}
	if epochs < 0 {
		return nil, fmt.Errorf("%w: negative epoch count %d", ErrValidation, epochs)
	}

	samples := SamplesPerEpoch(epochLength, rate)
	if samples == 0 {
		return nil, fmt.Errorf("%w: %v s at %v Hz is less than one sample", ErrValidation, epochLength, rate)
	}

	traces := w.traces()
	t := NewEpochTensor(epochs, len(traces), samples)
	for c, trace := range traces {
		for e := 0; e < epochs; e++ {
			lo := e * samples
			if lo >= len(trace) {
				break
			}
			copy(t.Trace(e, c), trace[lo:min(lo+samples, len(trace))])
		}
	}

	return t, nil
}
