// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package sleepstage

import "errors"

var (
	// ErrNotFound is returned when a required input file does not exist.
	ErrNotFound = errors.New("sleepstage: input not found")

	// ErrParse is returned when an annotation document is structurally malformed.
	ErrParse = errors.New("sleepstage: malformed annotations")

	// ErrValidation is returned when loaded data fails an internal consistency
	// check, such as a recording without stage events or without EEG channels.
	ErrValidation = errors.New("sleepstage: validation failed")

	// ErrNoData is returned when a corpus load produced no usable recordings.
	ErrNoData = errors.New("sleepstage: no usable recordings")
)
