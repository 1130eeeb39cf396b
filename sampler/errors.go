// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package sampler

import "fmt"

// SamplerError is an Error interface for use with constant errors.
type SamplerError string

func (e SamplerError) Error() string {
	return string(e)
}

// ErrNoSource is returned when a Sampler is asked to read from a nil Source.
const ErrNoSource = SamplerError("no source data")

// InvalidRangeMessage is the user-facing text for a rejected range selection.
const InvalidRangeMessage = "Invalid range. Last block number must be greater " +
	"than first block number (+ 100)"

// InvalidRangeError is returned by the range resolver when the resolved
// indices do not describe a non-empty range, i.e. from >= to after clamping.
type InvalidRangeError struct {
	From, To int
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("%s [from %d, to %d]", InvalidRangeMessage, e.From, e.To)
}

// UnknownPresetError is returned when a range preset name is not recognized.
type UnknownPresetError struct {
	Name string
}

func (e *UnknownPresetError) Error() string {
	return fmt.Sprintf("unknown range preset %q", e.Name)
}
