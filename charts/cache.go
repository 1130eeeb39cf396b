// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package charts

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/explorercharts/chartdata/sampler"
)

// DefaultCacheSize is the number of encoded charts kept by a ChartData.
const DefaultCacheSize = 512

// ChartData makes JSON encoded chart frames on request, caching the results
// until the chart's dataset is replaced.
type ChartData struct {
	registry *Registry
	data     Snapshotter
	locale   string
	cache    *lru.Cache

	// Observe, if set, is called with the chart ID, whether the result was
	// cached, and the time taken.
	Observe func(chartID string, cached bool, d time.Duration)
}

// NewChartData creates a ChartData with room for cacheSize encoded charts.
func NewChartData(registry *Registry, data Snapshotter, locale string, cacheSize int) (*ChartData, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &ChartData{
		registry: registry,
		data:     data,
		locale:   locale,
		cache:    cache,
	}, nil
}

// Registry is the chart registry.
func (c *ChartData) Registry() *Registry {
	return c.registry
}

// A cacheKey is used to specify cached data of a chart for a dataset
// revision, range selection and label set.
func cacheKey(chartID string, revision uint64, sel *sampler.Selection, set sampler.Labelset) string {
	if sel == nil {
		return fmt.Sprintf("%s-%d-initial-%s", chartID, revision, set)
	}
	if sel.Custom {
		return fmt.Sprintf("%s-%d-%d:%d-%s", chartID, revision, sel.BlockFrom, sel.BlockTo, set)
	}
	return fmt.Sprintf("%s-%d-%s-%s", chartID, revision, sel.Preset, set)
}

// Chart returns the JSON encoded Frame of a chart for a range selection. A
// nil selection is the chart's initial range, and an empty label set is the
// chart's default.
func (c *ChartData) Chart(chartID string, sel *sampler.Selection, set sampler.Labelset) ([]byte, error) {
	start := time.Now()
	spec, err := c.registry.Lookup(chartID)
	if err != nil {
		return nil, err
	}
	snap, err := c.data.Snapshot(spec.Dataset)
	if err != nil {
		return nil, err
	}
	if set == "" {
		set = spec.Labelset
	}
	if spec.Full || spec.Latest {
		sel = nil
	}

	ck := cacheKey(spec.ID, snap.Revision, sel, set)
	if data, found := c.cache.Get(ck); found {
		c.observe(spec.ID, true, start)
		return data.([]byte), nil
	}

	frame, err := Render(spec, snap, sel, set, c.locale)
	if err != nil {
		return nil, err
	}
	data, err := frame.JSON()
	if err != nil {
		return nil, err
	}
	c.cache.Add(ck, data)
	c.observe(spec.ID, false, start)
	return data, nil
}

func (c *ChartData) observe(chartID string, cached bool, start time.Time) {
	if c.Observe != nil {
		c.Observe(chartID, cached, time.Since(start))
	}
}

// Purge empties the cache.
func (c *ChartData) Purge() {
	c.cache.Purge()
}

// Len is the number of cached charts.
func (c *ChartData) Len() int {
	return c.cache.Len()
}
