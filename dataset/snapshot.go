// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package dataset

import (
	"sort"
	"time"

	"github.com/explorercharts/chartdata/sampler"
)

// Snapshot is an immutable, index-aligned view of one plot file. Every column
// has Len() points. A Snapshot is never modified after it is published by a
// Store, so it may be read concurrently without locking.
type Snapshot struct {
	ID string
	// Heights are the block heights of each point. When nil, the point index
	// is used as the height.
	Heights []int64
	// Times are unix times in seconds.
	Times   []int64
	Columns map[string]sampler.Series

	LastBlockHash string
	LastBlockNum  int64

	Revision uint64
	ModTime  time.Time
}

// Len is the number of points.
func (s *Snapshot) Len() int {
	return len(s.Times)
}

// Height is the block height of point i.
func (s *Snapshot) Height(i int) int64 {
	if s.Heights == nil {
		return int64(i)
	}
	return s.Heights[i]
}

// Time is the unix time of point i.
func (s *Snapshot) Time(i int) int64 {
	return s.Times[i]
}

// Column returns the named column.
func (s *Snapshot) Column(name string) (sampler.Series, bool) {
	c, ok := s.Columns[name]
	return c, ok
}

// ColumnNames returns the sorted column names.
func (s *Snapshot) ColumnNames() []string {
	names := make([]string, 0, len(s.Columns))
	for name := range s.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LastHeight is the height of the newest point, or -1 for an empty snapshot.
func (s *Snapshot) LastHeight() int64 {
	if s.Len() == 0 {
		return -1
	}
	return s.Height(s.Len() - 1)
}

// LastTime is the time of the newest point, or 0 for an empty snapshot.
func (s *Snapshot) LastTime() int64 {
	if s.Len() == 0 {
		return 0
	}
	return s.Times[s.Len()-1]
}

// Latest returns the newest value of every column.
func (s *Snapshot) Latest() map[string]float64 {
	latest := make(map[string]float64, len(s.Columns))
	for name, col := range s.Columns {
		latest[name] = col.Last()
	}
	return latest
}

// snip truncates every column to length l. It is only used while a snapshot
// is being built.
func (s *Snapshot) snip(l int) {
	if s.Heights != nil && len(s.Heights) > l {
		s.Heights = s.Heights[:l]
	}
	if len(s.Times) > l {
		s.Times = s.Times[:l]
	}
	for name, col := range s.Columns {
		s.Columns[name] = col.Snip(l)
	}
}

var _ sampler.Source = (*Snapshot)(nil)
