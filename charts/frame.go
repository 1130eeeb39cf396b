// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package charts

import (
	"encoding/json"

	"github.com/explorercharts/chartdata/dataset"
	"github.com/explorercharts/chartdata/sampler"
)

// Adapter is the charting library side of a chart. It owns all presentation
// and is only handed labels and values.
type Adapter interface {
	// SetLabels sets the block height labels and the time labels.
	SetLabels(primary, secondary []string)
	// SetSeries sets the values of the dataset at index.
	SetSeries(index int, values []float64)
	Redraw() error
}

// FrameDataset is one series of a Frame.
type FrameDataset struct {
	Label string         `json:"label"`
	Data  sampler.Series `json:"data"`
}

// Frame is an Adapter that keeps the drawn state of a chart for encoding as
// JSON for a browser side charting library.
type Frame struct {
	Chart string `json:"chart"`
	Title string `json:"title,omitempty"`
	sampler.Axis
	Datasets []FrameDataset `json:"datasets"`

	Range    sampler.Range `json:"range"`
	Step     int           `json:"step"`
	Dataset  string        `json:"dataset"`
	Revision uint64        `json:"revision"`

	redraws int
}

// NewFrame creates an empty Frame for a chart, showing the chart's initial
// label set.
func NewFrame(spec *Spec) *Frame {
	f := &Frame{
		Chart:    spec.ID,
		Title:    spec.Title,
		Axis:     sampler.Axis{Set: spec.Labelset},
		Datasets: make([]FrameDataset, len(spec.Metrics)),
		Dataset:  spec.Dataset,
	}
	for i := range spec.Metrics {
		f.Datasets[i].Label = spec.Metrics[i].Name
	}
	return f
}

// SetLabels sets the shown and hidden labels according to the shown label
// set. Satisfies the Adapter interface.
func (f *Frame) SetLabels(primary, secondary []string) {
	if f.Set == sampler.LabelsetTime {
		f.Labels, f.Hidden = secondary, primary
		return
	}
	f.Labels, f.Hidden = primary, secondary
}

// SetSeries sets the data of a dataset. Satisfies the Adapter interface.
func (f *Frame) SetSeries(index int, values []float64) {
	for len(f.Datasets) <= index {
		f.Datasets = append(f.Datasets, FrameDataset{})
	}
	f.Datasets[index].Data = values
}

// Redraw satisfies the Adapter interface. A Frame is drawn by whoever
// receives it, so only the number of redraws is kept.
func (f *Frame) Redraw() error {
	f.redraws++
	return nil
}

// Redraws is the number of times the frame was redrawn.
func (f *Frame) Redraws() int {
	return f.redraws
}

// SetAxis shows the requested label set.
func (f *Frame) SetAxis(set sampler.Labelset) {
	f.Axis = f.Axis.SetAxis(set)
}

// Copy returns a copy of the frame. Label and data slices are shared, since
// they are replaced and never modified in place.
func (f *Frame) Copy() *Frame {
	c := *f
	c.Datasets = append([]FrameDataset(nil), f.Datasets...)
	return &c
}

// JSON encodes the frame.
func (f *Frame) JSON() ([]byte, error) {
	return json.Marshal(f)
}

// Sample reduces a chart's dataset over the selected range. A nil selection
// is the initial range of the chart. Full and Latest charts ignore the
// selection.
func Sample(spec *Spec, snap *dataset.Snapshot, sel *sampler.Selection, locale string) (*sampler.Sampled, error) {
	n := snap.Len()
	if n == 0 {
		return nil, ErrEmptyDataset
	}
	smp := sampler.NewSampler(spec.Target, sampler.NewTimeFormatter(locale, spec.DateOnly))

	var r sampler.Range
	var err error
	switch {
	case spec.Latest:
		return smp.At(snap, n-1, spec.Metrics)
	case spec.Full:
		r = sampler.Range{From: 0, To: n - 1}
		smp.Target = n
	case sel == nil:
		r, err = sampler.InitialRange(n)
	default:
		r, err = sampler.Resolve(*sel, spec.Step, n)
	}
	if err != nil {
		return nil, err
	}
	return smp.Sample(snap, r, spec.Metrics)
}

// Apply hands sampled data to an adapter and redraws it. Everything is
// computed before Apply is called, so the adapter is either fully updated or
// left alone.
func Apply(a Adapter, sampled *sampler.Sampled) error {
	a.SetLabels(sampled.HeightLabels(), sampled.TimeLabels)
	for i := range sampled.Series {
		a.SetSeries(i, sampled.Series[i].Values)
	}
	return a.Redraw()
}

// Render samples a chart into a new Frame.
func Render(spec *Spec, snap *dataset.Snapshot, sel *sampler.Selection, set sampler.Labelset, locale string) (*Frame, error) {
	sampled, err := Sample(spec, snap, sel, locale)
	if err != nil {
		return nil, err
	}
	f := NewFrame(spec)
	if set != "" {
		f.Set = set
	}
	if err = Apply(f, sampled); err != nil {
		return nil, err
	}
	f.Range = sampled.Range
	f.Step = sampled.Step
	f.Revision = snap.Revision
	return f, nil
}
