// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package charts

import (
	"fmt"
	"sort"
	"sync"

	"github.com/explorercharts/chartdata/sampler"
)

// ChartError is an Error interface for use with constant errors.
type ChartError string

func (e ChartError) Error() string {
	return string(e)
}

// ErrEmptyDataset is returned when a chart's dataset has no points.
const ErrEmptyDataset = ChartError("dataset has no points")

// ErrNotOnBoard is returned for a registered chart that a Board has not
// drawn yet.
const ErrNotOnBoard = ChartError("chart not drawn")

// UnknownChartIDError is returned when a chart ID does not match any
// registered chart.
type UnknownChartIDError struct {
	ID string
}

func (e *UnknownChartIDError) Error() string {
	return fmt.Sprintf("%s not found", e.ID)
}

// Spec describes how a chart is made from a dataset.
type Spec struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
	// Aliases are alternative IDs, such as the canvas IDs of the explorer
	// pages.
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Dataset string   `json:"dataset" yaml:"dataset"`
	// Step is the number of blocks between two dataset points. It scales the
	// range presets and converts block bounds to indices.
	Step int `json:"step" yaml:"step"`
	// Target is the number of points a range is reduced to.
	Target int `json:"target" yaml:"target"`
	// Labelset is the x axis shown first.
	Labelset sampler.Labelset `json:"labelset" yaml:"labelset"`
	// DateOnly leaves the time of day out of the time labels.
	DateOnly bool `json:"dateonly,omitempty" yaml:"dateonly,omitempty"`
	// Full charts always show every point and ignore range selections.
	Full bool `json:"full,omitempty" yaml:"full,omitempty"`
	// Latest charts show only the newest point.
	Latest  bool             `json:"latest,omitempty" yaml:"latest,omitempty"`
	Metrics []sampler.Metric `json:"metrics" yaml:"metrics"`
}

// Validate checks the spec and fills in defaults.
func (s *Spec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("chart has no id")
	}
	if s.Dataset == "" {
		return fmt.Errorf("chart %s has no dataset", s.ID)
	}
	if s.Full && s.Latest {
		return fmt.Errorf("chart %s cannot be both full and latest", s.ID)
	}
	if s.Step <= 0 {
		s.Step = sampler.DefaultStep
	}
	if s.Target <= 0 {
		s.Target = sampler.DefaultTarget
	}
	if s.Labelset == "" {
		s.Labelset = sampler.LabelsetBlocks
	}
	if _, err := sampler.ParseLabelset(string(s.Labelset)); err != nil {
		return fmt.Errorf("chart %s: %w", s.ID, err)
	}
	if len(s.Metrics) == 0 {
		return fmt.Errorf("chart %s has no metrics", s.ID)
	}
	if err := sampler.ValidateMetrics(s.Metrics); err != nil {
		return fmt.Errorf("chart %s: %w", s.ID, err)
	}
	return nil
}

// SeriesNames lists the output series of the chart in dataset order.
func (s *Spec) SeriesNames() []string {
	names := make([]string, len(s.Metrics))
	for i := range s.Metrics {
		names[i] = s.Metrics[i].Name
	}
	return names
}

// Registry maps chart IDs and aliases to chart specs. It is safe for
// concurrent use.
type Registry struct {
	mtx     sync.RWMutex
	specs   map[string]*Spec
	aliases map[string]string
	order   []string
}

// NewRegistry creates a Registry holding the given specs. Duplicate IDs are
// an error.
func NewRegistry(specs ...*Spec) (*Registry, error) {
	r := &Registry{
		specs:   make(map[string]*Spec, len(specs)),
		aliases: make(map[string]string),
	}
	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a chart. The ID and aliases must not be in use.
func (r *Registry) Register(spec *Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.taken(spec.ID) {
		return fmt.Errorf("chart id %s already registered", spec.ID)
	}
	for _, alias := range spec.Aliases {
		if r.taken(alias) {
			return fmt.Errorf("chart alias %s already registered", alias)
		}
	}
	r.add(spec)
	return nil
}

// Override adds a chart, replacing any registered chart with the same ID.
func (r *Registry) Override(spec *Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if _, isAlias := r.aliases[spec.ID]; isAlias {
		return fmt.Errorf("chart id %s is an alias of another chart", spec.ID)
	}
	for _, alias := range spec.Aliases {
		owner, isAlias := r.aliases[alias]
		_, isSpec := r.specs[alias]
		if (isAlias && owner != spec.ID) || isSpec {
			return fmt.Errorf("chart alias %s already registered", alias)
		}
	}
	if old, found := r.specs[spec.ID]; found {
		for _, alias := range old.Aliases {
			delete(r.aliases, alias)
		}
		delete(r.specs, spec.ID)
		for i, id := range r.order {
			if id == spec.ID {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
		log.Infof("Chart %s replaced", spec.ID)
	}
	r.add(spec)
	return nil
}

func (r *Registry) taken(id string) bool {
	_, isSpec := r.specs[id]
	_, isAlias := r.aliases[id]
	return isSpec || isAlias
}

func (r *Registry) add(spec *Spec) {
	r.specs[spec.ID] = spec
	for _, alias := range spec.Aliases {
		r.aliases[alias] = spec.ID
	}
	r.order = append(r.order, spec.ID)
}

// Lookup returns the spec for a chart ID or alias.
func (r *Registry) Lookup(id string) (*Spec, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	if spec, found := r.specs[id]; found {
		return spec, nil
	}
	if canonical, found := r.aliases[id]; found {
		return r.specs[canonical], nil
	}
	return nil, &UnknownChartIDError{ID: id}
}

// Specs lists the registered charts in registration order.
func (r *Registry) Specs() []*Spec {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	specs := make([]*Spec, 0, len(r.order))
	for _, id := range r.order {
		specs = append(specs, r.specs[id])
	}
	return specs
}

// ForDataset lists the IDs of the charts drawn from a dataset.
func (r *Registry) ForDataset(datasetID string) []string {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	var ids []string
	for _, id := range r.order {
		if r.specs[id].Dataset == datasetID {
			ids = append(ids, id)
		}
	}
	return ids
}

// Datasets lists the datasets used by registered charts.
func (r *Registry) Datasets() []string {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	seen := make(map[string]struct{})
	for _, spec := range r.specs {
		seen[spec.Dataset] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
