// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package sampler

import (
	"fmt"
	"strings"
)

// Policy is the aggregation applied to a metric within each emitted bucket.
type Policy uint8

const (
	// PassThrough takes the value at the bucket boundary index.
	PassThrough Policy = iota
	// Sum adds the values since the previous bucket, then resets.
	Sum
	// Average is the mean of the values since the previous bucket, then
	// resets.
	Average
	// Cumulative adds every value since the start of the range and is never
	// reset.
	Cumulative
	// Delta is (out[k] - out[k-1]) / step of another output metric, and 0 for
	// the first bucket.
	Delta
	// Window is (v[i] - v[i-W]) / W for a cumulative source column, and 0
	// while i <= W.
	Window
)

var policyNames = [...]string{
	PassThrough: "passthrough",
	Sum:         "sum",
	Average:     "average",
	Cumulative:  "cumulative",
	Delta:       "delta",
	Window:      "window",
}

func (p Policy) String() string {
	if int(p) < len(policyNames) {
		return policyNames[p]
	}
	return fmt.Sprintf("Policy(%d)", uint8(p))
}

// ParsePolicy returns the Policy with the given name.
func ParsePolicy(name string) (Policy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range policyNames {
		if n == name {
			return Policy(i), nil
		}
	}
	return 0, fmt.Errorf("unknown aggregation policy %q", name)
}

// MarshalText satisfies encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText satisfies encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(b []byte) error {
	pp, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}
	*p = pp
	return nil
}

// Metric describes one output series of a chart.
type Metric struct {
	// Name is the output series name.
	Name string `json:"name" yaml:"name"`
	// Column is the source column. Name is used when empty.
	Column string `json:"column,omitempty" yaml:"column,omitempty"`
	Policy Policy `json:"policy" yaml:"policy"`
	// PerStep normalizes a Sum by PerStep*step, e.g. 100 for a per block
	// value from 100-block points.
	PerStep float64 `json:"perstep,omitempty" yaml:"perstep,omitempty"`
	// Of is the output series differenced by a Delta metric.
	Of string `json:"of,omitempty" yaml:"of,omitempty"`
	// Window is the lookback, in source points, of a Window metric.
	Window int `json:"window,omitempty" yaml:"window,omitempty"`
	// Scale multiplies every emitted value. Zero means 1.
	Scale float64 `json:"scale,omitempty" yaml:"scale,omitempty"`
	// Decimals rounds emitted values to a fixed number of decimal places.
	// Zero leaves values unrounded.
	Decimals int32 `json:"decimals,omitempty" yaml:"decimals,omitempty"`
}

// SourceColumn is the name of the source column the metric reads.
func (m *Metric) SourceColumn() string {
	if m.Column != "" {
		return m.Column
	}
	return m.Name
}

// Validate checks that the metric is internally consistent.
func (m *Metric) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("metric has no name")
	}
	switch m.Policy {
	case PassThrough, Sum, Average, Cumulative:
	case Delta:
		if m.Of == "" {
			return fmt.Errorf("delta metric %q has no source series", m.Name)
		}
		if m.Of == m.Name {
			return fmt.Errorf("delta metric %q differences itself", m.Name)
		}
	case Window:
		if m.Window <= 0 {
			return fmt.Errorf("window metric %q has window %d", m.Name, m.Window)
		}
	default:
		return fmt.Errorf("metric %q has unknown policy %v", m.Name, m.Policy)
	}
	if m.PerStep < 0 {
		return fmt.Errorf("metric %q has negative perstep", m.Name)
	}
	if m.Decimals < 0 {
		return fmt.Errorf("metric %q has negative decimals", m.Name)
	}
	return nil
}

// ValidateMetrics checks every metric and the references between them. A
// Delta metric must difference a non-Delta metric of the same list.
func ValidateMetrics(metrics []Metric) error {
	byName := make(map[string]*Metric, len(metrics))
	for i := range metrics {
		m := &metrics[i]
		if err := m.Validate(); err != nil {
			return err
		}
		if _, dup := byName[m.Name]; dup {
			return fmt.Errorf("duplicate metric %q", m.Name)
		}
		byName[m.Name] = m
	}
	for i := range metrics {
		m := &metrics[i]
		if m.Policy != Delta {
			continue
		}
		of, found := byName[m.Of]
		if !found {
			return fmt.Errorf("delta metric %q references unknown series %q", m.Name, m.Of)
		}
		if of.Policy == Delta {
			return fmt.Errorf("delta metric %q references delta series %q", m.Name, m.Of)
		}
	}
	return nil
}
