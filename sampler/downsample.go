// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package sampler

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// DefaultTarget is the number of points a chart is reduced to when no other
// target is set.
const DefaultTarget = 120

// Source is an index-aligned history that a Sampler reads from. All columns
// have Len() points, and index i is the same block or period in every column.
type Source interface {
	Len() int
	Height(i int) int64
	Time(i int) int64
	Column(name string) (Series, bool)
}

// MissingColumnError is returned when a metric reads a column the Source does
// not have.
type MissingColumnError struct {
	Metric, Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("metric %q: source has no column %q", e.Metric, e.Column)
}

// NamedSeries is one output series of a Sampled result.
type NamedSeries struct {
	Name   string `json:"label"`
	Values Series `json:"data"`
}

// Sampled is the downsampled form of a Source over a Range. Every slice has
// one entry per emitted bucket.
type Sampled struct {
	Range   Range
	Step    int
	Heights []int64
	Times   []int64
	// TimeLabels are the formatted Times.
	TimeLabels []string
	Series     []NamedSeries
}

// Len is the number of emitted buckets.
func (s *Sampled) Len() int {
	return len(s.Heights)
}

// Values returns the output series with the given name.
func (s *Sampled) Values(name string) (Series, bool) {
	for i := range s.Series {
		if s.Series[i].Name == name {
			return s.Series[i].Values, true
		}
	}
	return nil, false
}

// HeightLabels are the Heights as axis labels.
func (s *Sampled) HeightLabels() []string {
	labels := make([]string, len(s.Heights))
	for i, h := range s.Heights {
		labels[i] = strconv.FormatInt(h, 10)
	}
	return labels
}

// Axis returns the x axis for the sampled data with the given label set
// visible.
func (s *Sampled) Axis(set Labelset) Axis {
	axis := Axis{
		Set:    LabelsetBlocks,
		Labels: s.HeightLabels(),
		Hidden: append([]string(nil), s.TimeLabels...),
	}
	return axis.SetAxis(set)
}

// Sampler reduces a range of a Source to about Target points.
type Sampler struct {
	// Target is the desired number of points. DefaultTarget is used when it
	// is not positive.
	Target int
	// Format converts unix times into axis labels. DefaultTimeFormat is used
	// when it is nil.
	Format LabelFormatter
}

// NewSampler creates a Sampler with the given target and label formatter.
func NewSampler(target int, format LabelFormatter) *Sampler {
	return &Sampler{Target: target, Format: format}
}

func (s *Sampler) target() int {
	if s == nil || s.Target <= 0 {
		return DefaultTarget
	}
	return s.Target
}

func (s *Sampler) format() LabelFormatter {
	if s == nil || s.Format == nil {
		return DefaultTimeFormat
	}
	return s.Format
}

// Step is the bucket width, in source points, used for the range.
func (s *Sampler) Step(r Range) int {
	return 1 + (r.To-r.From)/s.target()
}

// Sample aggregates the source over r with one output series per metric.
//
// Every index of the range is accumulated, and a bucket is emitted at each
// index i with i%step == 0, or at every index when step is 1. Indices after
// the last emitted bucket are dropped.
func (s *Sampler) Sample(src Source, r Range, metrics []Metric) (*Sampled, error) {
	if src == nil {
		return nil, ErrNoSource
	}
	n := src.Len()
	if r.From < 0 || r.To >= n || r.From > r.To {
		return nil, &InvalidRangeError{From: r.From, To: r.To}
	}
	if err := ValidateMetrics(metrics); err != nil {
		return nil, err
	}

	cols := make([]Series, len(metrics))
	outIdx := make(map[string]int, len(metrics))
	for i := range metrics {
		m := &metrics[i]
		outIdx[m.Name] = i
		if m.Policy == Delta {
			continue
		}
		col, found := src.Column(m.SourceColumn())
		if !found {
			return nil, &MissingColumnError{Metric: m.Name, Column: m.SourceColumn()}
		}
		if len(col) < n {
			return nil, fmt.Errorf("column %q has %d points, expected %d",
				m.SourceColumn(), len(col), n)
		}
		cols[i] = col
	}

	step := s.Step(r)
	capacity := r.Len()/step + 1
	out := &Sampled{
		Range:      r,
		Step:       step,
		Heights:    make([]int64, 0, capacity),
		Times:      make([]int64, 0, capacity),
		TimeLabels: make([]string, 0, capacity),
		Series:     make([]NamedSeries, len(metrics)),
	}
	for i := range metrics {
		out.Series[i] = NamedSeries{
			Name:   metrics[i].Name,
			Values: make(Series, 0, capacity),
		}
	}

	format := s.format()
	// Running totals of the Cumulative metrics.
	totals := make([]float64, len(metrics))
	bucketStart := r.From
	for i := r.From; i <= r.To; i++ {
		for j := range metrics {
			if metrics[j].Policy == Cumulative {
				totals[j] += cols[j][i]
			}
		}
		if step > 1 && i%step != 0 {
			continue
		}

		t := src.Time(i)
		out.Heights = append(out.Heights, src.Height(i))
		out.Times = append(out.Times, t)
		out.TimeLabels = append(out.TimeLabels, format(t))

		// Delta metrics read the values emitted for this bucket, so they are
		// computed after everything else.
		for j := range metrics {
			m := &metrics[j]
			var v float64
			switch m.Policy {
			case PassThrough:
				v = cols[j][i]
			case Sum:
				v = cols[j].Sum(bucketStart, i+1)
				if m.PerStep > 0 {
					v /= m.PerStep * float64(step)
				}
			case Average:
				v = cols[j].Avg(bucketStart, i+1)
			case Cumulative:
				v = totals[j]
			case Window:
				if i > m.Window {
					v = (cols[j][i] - cols[j][i-m.Window]) / float64(m.Window)
				}
			case Delta:
				continue
			}
			out.Series[j].Values = append(out.Series[j].Values, m.finish(v))
		}
		for j := range metrics {
			m := &metrics[j]
			if m.Policy != Delta {
				continue
			}
			of := out.Series[outIdx[m.Of]].Values
			k := len(of) - 1
			var v float64
			if k > 0 {
				v = (of[k] - of[k-1]) / float64(step)
			}
			out.Series[j].Values = append(out.Series[j].Values, m.finish(v))
		}

		bucketStart = i + 1
	}

	log.Tracef("Sampled [%d, %d] with step %d into %d points", r.From, r.To,
		step, out.Len())
	return out, nil
}

// At returns the metric values at the single source index i.
func (s *Sampler) At(src Source, i int, metrics []Metric) (*Sampled, error) {
	return s.Sample(src, Range{From: i, To: i}, metrics)
}

// finish applies the metric's scale and rounding to an aggregated value.
func (m *Metric) finish(v float64) float64 {
	if m.Scale != 0 {
		v *= m.Scale
	}
	if m.Decimals > 0 {
		v = RoundDecimals(v, m.Decimals)
	}
	return v
}

// RoundDecimals rounds v to the given number of decimal places using exact
// decimal arithmetic. Infinities and NaN are returned unchanged.
func RoundDecimals(v float64, places int32) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
