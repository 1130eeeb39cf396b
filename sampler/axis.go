// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package sampler

import "fmt"

// Labelset names the label sequence shown on a chart's x axis.
type Labelset string

const (
	LabelsetBlocks Labelset = "blocks"
	LabelsetTime   Labelset = "time"
)

// ParseLabelset returns the Labelset with the given name. An empty name means
// LabelsetBlocks.
func ParseLabelset(name string) (Labelset, error) {
	switch Labelset(name) {
	case "", LabelsetBlocks:
		return LabelsetBlocks, nil
	case LabelsetTime:
		return LabelsetTime, nil
	}
	return "", fmt.Errorf("unknown axis %q", name)
}

// Other is the label set that is hidden while ls is shown.
func (ls Labelset) Other() Labelset {
	if ls == LabelsetTime {
		return LabelsetBlocks
	}
	return LabelsetTime
}

// Axis holds both label sequences of a chart. Labels are shown, Hidden are
// kept for swapping back, and Set names the shown sequence.
type Axis struct {
	Set    Labelset `json:"labelset"`
	Labels []string `json:"labels"`
	Hidden []string `json:"hiddenlabels"`
}

// Swap exchanges the shown and hidden labels. Swap(Swap(a)) equals a.
func (a Axis) Swap() Axis {
	return Axis{
		Set:    a.Set.Other(),
		Labels: a.Hidden,
		Hidden: a.Labels,
	}
}

// SetAxis shows the requested label set, swapping only if it is hidden.
func (a Axis) SetAxis(set Labelset) Axis {
	if a.Set == set {
		return a
	}
	return a.Swap()
}
