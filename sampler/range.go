// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package sampler

import (
	"math"
	"strings"
)

// Preset is a named range selection, measured back from the newest point.
type Preset string

const (
	PresetAll   Preset = "all"
	PresetYear  Preset = "last_year"
	PresetMonth Preset = "last_month"
	PresetWeek  Preset = "last_week"
	PresetDay   Preset = "last_day"
)

// Number of points covered by each preset at the baseline of one point per
// 100 blocks.
const (
	StepsYear  = 5256
	StepsMonth = 432
	StepsWeek  = 100
	StepsDay   = 15

	baselineStep = 100
)

// DefaultStep is the number of blocks between consecutive points of the plot
// files.
const DefaultStep = 100

var presetSteps = map[Preset]int{
	PresetYear:  StepsYear,
	PresetMonth: StepsMonth,
	PresetWeek:  StepsWeek,
	PresetDay:   StepsDay,
}

// ParsePreset maps a preset name to a Preset. Both the long ("last_week") and
// short ("week") forms are accepted, and an empty name means PresetAll.
func ParsePreset(name string) (Preset, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "", string(PresetAll):
		return PresetAll, nil
	}
	p := Preset(name)
	if _, ok := presetSteps[p]; ok {
		return p, nil
	}
	p = Preset("last_" + name)
	if _, ok := presetSteps[p]; ok {
		return p, nil
	}
	return "", &UnknownPresetError{Name: name}
}

// Presets lists the named ranges from the widest to the narrowest.
func Presets() []Preset {
	return []Preset{PresetAll, PresetYear, PresetMonth, PresetWeek, PresetDay}
}

// TimeRange is the number of points a preset spans for a dataset with the
// given step. PresetAll, and any unknown preset, spans 0 points, which the
// resolver reads as "everything".
func TimeRange(p Preset, step int) int {
	c, ok := presetSteps[p]
	if !ok || step <= 0 {
		return 0
	}
	return round(float64(c) * float64(baselineStep) / float64(step))
}

// Selection is a range request. When Custom is set the block bounds are used
// and Preset is ignored.
type Selection struct {
	Preset    Preset
	Custom    bool
	BlockFrom int64
	BlockTo   int64
}

// PresetSelection is a Selection of a named range.
func PresetSelection(p Preset) Selection {
	return Selection{Preset: p}
}

// BlockSelection is a Selection of explicit block bounds.
func BlockSelection(blockFrom, blockTo int64) Selection {
	return Selection{Custom: true, BlockFrom: blockFrom, BlockTo: blockTo}
}

// Range is an inclusive span of source indices.
type Range struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Len is the number of source indices in the range.
func (r Range) Len() int {
	return r.To - r.From + 1
}

// InitialRange is the range a chart shows before any selection is made. The
// first point is skipped.
func InitialRange(n int) (Range, error) {
	return clampRange(1, n-1, n)
}

// Resolve converts a Selection into source indices for a dataset of n points
// spaced step blocks apart. It fails with *InvalidRangeError when the result
// is not a non-empty range.
func Resolve(sel Selection, step, n int) (Range, error) {
	if sel.Custom {
		return ResolveBlocks(sel.BlockFrom, sel.BlockTo, step, n)
	}
	return ResolvePreset(sel.Preset, step, n)
}

// ResolvePreset resolves a named range. The newest index is always n-1.
func ResolvePreset(p Preset, step, n int) (Range, error) {
	timeRange := TimeRange(p, step)
	from := n - timeRange
	if timeRange == 0 {
		from = 0
	}
	return clampRange(from, n-1, n)
}

// ResolveBlocks resolves explicit block bounds, e.g. blockFrom=100 and
// blockTo=500 with step 100 is the index range (0, 4).
func ResolveBlocks(blockFrom, blockTo int64, step, n int) (Range, error) {
	if step <= 0 {
		step = 1
	}
	from := round(float64(blockFrom)/float64(step)) - 1
	to := round(float64(blockTo)/float64(step)) - 1
	return clampRange(from, to, n)
}

func clampRange(from, to, n int) (Range, error) {
	if to > n-1 {
		to = n - 1
	}
	if from < 0 {
		from = 0
	}
	if from >= to {
		log.Debugf("Rejected range selection [%d, %d] of %d points", from, to, n)
		return Range{}, &InvalidRangeError{From: from, To: to}
	}
	return Range{From: from, To: to}, nil
}

// round rounds half up, like Math.round in the browser.
func round(x float64) int {
	return int(math.Floor(x + 0.5))
}
