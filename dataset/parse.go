// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/explorercharts/chartdata/sampler"
)

// DatasetError is an Error interface for use with constant errors.
type DatasetError string

func (e DatasetError) Error() string {
	return string(e)
}

// ErrLengthMismatch is returned by ValidateLengths when the data sets differ
// in length.
const ErrLengthMismatch = DatasetError("data length mismatch")

// An interface for reading the length of datasets.
type lengther interface {
	Length() int
}

type int64s []int64

func (data int64s) Length() int {
	return len(data)
}

type namedLengther struct {
	name string
	lengther
}

// ValidateLengths checks that the length of all arguments is equal. The
// length of the shortest is returned along with ErrLengthMismatch if they
// differ.
func ValidateLengths(lens ...lengther) (int, error) {
	lenLen := len(lens)
	if lenLen == 0 {
		return 0, nil
	}
	firstLen := lens[0].Length()
	shortest := firstLen
	mismatch := false
	for i, l := range lens[1:lenLen] {
		dLen := l.Length()
		if dLen != firstLen {
			mismatch = true
			name := fmt.Sprintf("index %d", i+1)
			if nl, ok := l.(namedLengther); ok {
				name = nl.name
			}
			log.Warnf("dataset.ValidateLengths: dataset %s has mismatched length %d != %d",
				name, dLen, firstLen)
			if dLen < shortest {
				shortest = dLen
			}
		}
	}
	if mismatch {
		return shortest, ErrLengthMismatch
	}
	return firstLen, nil
}

// Parse reads a plot file. Arrays of numbers become columns, objects of
// arrays become columns named "parent.child", and the axis and metadata keys
// of the Definition are stored on the snapshot. Columns of unequal length
// are truncated to the shortest with a warning.
func Parse(def *Definition, r io.Reader) (*Snapshot, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding %s data: %w", def.ID, err)
	}

	snap := &Snapshot{
		ID:      def.ID,
		Columns: make(map[string]sampler.Series, len(raw)),
	}

	timeRaw, found := raw[def.TimeKey]
	if !found {
		return nil, fmt.Errorf("%s data has no %q axis", def.ID, def.TimeKey)
	}
	times, err := decodeInts(timeRaw)
	if err != nil {
		return nil, fmt.Errorf("%s data %q axis: %w", def.ID, def.TimeKey, err)
	}
	snap.Times = times

	if def.HeightKey != "" {
		heightRaw, found := raw[def.HeightKey]
		if !found {
			return nil, fmt.Errorf("%s data has no %q axis", def.ID, def.HeightKey)
		}
		heights, err := decodeInts(heightRaw)
		if err != nil {
			return nil, fmt.Errorf("%s data %q axis: %w", def.ID, def.HeightKey, err)
		}
		snap.Heights = heights
	}

	for key, msg := range raw {
		if key == def.TimeKey || key == def.HeightKey {
			continue
		}
		if err = snap.addValue(def, key, msg); err != nil {
			return nil, fmt.Errorf("%s data key %q: %w", def.ID, key, err)
		}
	}

	if l, err := ValidateLengths(snap.lengthers()...); err != nil {
		log.Warnf("Truncating %s data to %d points", def.ID, l)
		snap.snip(l)
	}

	for _, derive := range def.Derive {
		if err = derive(snap); err != nil {
			return nil, fmt.Errorf("deriving %s columns: %w", def.ID, err)
		}
	}

	return snap, nil
}

func (s *Snapshot) addValue(def *Definition, key string, msg json.RawMessage) error {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 {
		return nil
	}
	switch msg[0] {
	case '[':
		var col sampler.Series
		if err := json.Unmarshal(msg, &col); err != nil {
			return err
		}
		s.Columns[columnName(def, key)] = col
	case '{':
		var cols map[string]sampler.Series
		if err := json.Unmarshal(msg, &cols); err != nil {
			return err
		}
		parent := columnName(def, key)
		for child, col := range cols {
			s.Columns[parent+"."+child] = col
		}
	case '"':
		var str string
		if err := json.Unmarshal(msg, &str); err != nil {
			return err
		}
		if key == LastBlockHashKey {
			s.LastBlockHash = str
		} else {
			log.Debugf("Ignoring %s string value %q", def.ID, key)
		}
	case 'n', 't', 'f':
		log.Debugf("Ignoring %s value %q", def.ID, key)
	default:
		var num float64
		if err := json.Unmarshal(msg, &num); err != nil {
			return err
		}
		if key == LastBlockNumKey {
			s.LastBlockNum = int64(num)
		} else {
			log.Debugf("Ignoring %s scalar value %q", def.ID, key)
		}
	}
	return nil
}

func columnName(def *Definition, key string) string {
	if alias, found := def.Aliases[key]; found {
		return alias
	}
	return key
}

func decodeInts(msg json.RawMessage) ([]int64, error) {
	var vals []float64
	if err := json.Unmarshal(msg, &vals); err != nil {
		return nil, err
	}
	ints := make([]int64, len(vals))
	for i, v := range vals {
		ints[i] = int64(v)
	}
	return ints, nil
}

// lengthers lists the axes and columns in a stable order, time axis first.
func (s *Snapshot) lengthers() []lengther {
	lens := []lengther{namedLengther{"time axis", int64s(s.Times)}}
	if s.Heights != nil {
		lens = append(lens, namedLengther{"height axis", int64s(s.Heights)})
	}
	names := make([]string, 0, len(s.Columns))
	for name := range s.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		lens = append(lens, namedLengther{name, s.Columns[name]})
	}
	return lens
}
