// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package charts

import (
	"fmt"

	"github.com/explorercharts/chartdata/dataset"
	"github.com/explorercharts/chartdata/sampler"
)

// Snapshotter provides the current snapshot of a dataset.
type Snapshotter interface {
	Snapshot(id string) (*dataset.Snapshot, error)
}

// liveChart is a chart shown on a Board with its current selection.
type liveChart struct {
	spec  *Spec
	frame *Frame
	// sel is nil until a range is selected.
	sel *sampler.Selection
}

// Board is the set of charts shown to one viewer, such as a browser page. It
// keeps the current range and axis of every chart so they can be redrawn when
// the data changes. A Board is not safe for concurrent use.
type Board struct {
	registry *Registry
	data     Snapshotter
	locale   string
	charts   map[string]*liveChart
}

// NewBoard creates an empty Board.
func NewBoard(registry *Registry, data Snapshotter, locale string) *Board {
	return &Board{
		registry: registry,
		data:     data,
		locale:   locale,
		charts:   make(map[string]*liveChart),
	}
}

// chart returns the live chart for an ID or alias, adding it to the board
// if needed.
func (b *Board) chart(id string) (*liveChart, error) {
	spec, err := b.registry.Lookup(id)
	if err != nil {
		log.Warnf("Chart board: %v", err)
		return nil, err
	}
	lc, found := b.charts[spec.ID]
	if !found {
		lc = &liveChart{spec: spec, frame: NewFrame(spec)}
		b.charts[spec.ID] = lc
	}
	return lc, nil
}

// draw samples the chart for sel and applies it to the chart's frame. The
// frame is unchanged if sampling fails.
func (b *Board) draw(lc *liveChart, sel *sampler.Selection) error {
	snap, err := b.data.Snapshot(lc.spec.Dataset)
	if err != nil {
		return err
	}
	sampled, err := Sample(lc.spec, snap, sel, b.locale)
	if err != nil {
		return err
	}
	if err = Apply(lc.frame, sampled); err != nil {
		return err
	}
	lc.frame.Range = sampled.Range
	lc.frame.Step = sampled.Step
	lc.frame.Revision = snap.Revision
	lc.sel = sel
	return nil
}

// Init draws a chart with its initial range.
func (b *Board) Init(id string) (*Frame, error) {
	lc, err := b.chart(id)
	if err != nil {
		return nil, err
	}
	if err = b.draw(lc, nil); err != nil {
		return nil, err
	}
	return lc.frame.Copy(), nil
}

// InitAll draws every registered chart with its initial range. Charts whose
// data is unavailable are skipped.
func (b *Board) InitAll() []*Frame {
	specs := b.registry.Specs()
	frames := make([]*Frame, 0, len(specs))
	for _, spec := range specs {
		f, err := b.Init(spec.ID)
		if err != nil {
			log.Debugf("Chart %s not drawn: %v", spec.ID, err)
			continue
		}
		frames = append(frames, f)
	}
	return frames
}

// SetRange redraws a chart for a new range selection. On error, including an
// invalid range, the chart keeps its previous state.
func (b *Board) SetRange(id string, sel sampler.Selection) (*Frame, error) {
	lc, err := b.chart(id)
	if err != nil {
		return nil, err
	}
	if err = b.draw(lc, &sel); err != nil {
		return nil, err
	}
	return lc.frame.Copy(), nil
}

// SetAxis shows the requested label set of a drawn chart. Showing the set
// that is already shown changes nothing.
func (b *Board) SetAxis(id string, set sampler.Labelset) (*Frame, error) {
	lc, err := b.drawn(id)
	if err != nil {
		return nil, err
	}
	lc.frame.SetAxis(set)
	return lc.frame.Copy(), nil
}

// Frame returns the current state of a chart on the board.
func (b *Board) Frame(id string) (*Frame, error) {
	lc, err := b.drawn(id)
	if err != nil {
		return nil, err
	}
	return lc.frame.Copy(), nil
}

// drawn returns the live chart for an ID or alias only if it is already on
// the board.
func (b *Board) drawn(id string) (*liveChart, error) {
	spec, err := b.registry.Lookup(id)
	if err != nil {
		return nil, err
	}
	lc, found := b.charts[spec.ID]
	if !found {
		return nil, fmt.Errorf("%s: %w", id, ErrNotOnBoard)
	}
	return lc, nil
}

// Refresh redraws every chart of a dataset for its current selection, such as
// after the dataset was reloaded. Charts that can no longer be drawn keep
// their state and are left out of the result.
func (b *Board) Refresh(datasetID string) []*Frame {
	var frames []*Frame
	for _, lc := range b.charts {
		if lc.spec.Dataset != datasetID {
			continue
		}
		if err := b.draw(lc, lc.sel); err != nil {
			log.Debugf("Chart %s not refreshed: %v", lc.spec.ID, err)
			continue
		}
		frames = append(frames, lc.frame.Copy())
	}
	return frames
}
