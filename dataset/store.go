// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	humanize "github.com/dustin/go-humanize"
)

// ErrNotLoaded is returned for a known dataset that has no data yet.
const ErrNotLoaded = DatasetError("dataset not loaded")

// ErrReloadInProgress is returned by Reload when another reload of the same
// dataset is running.
const ErrReloadInProgress = DatasetError("reload already in progress")

// UnknownDatasetError is returned when a dataset ID has no Definition.
type UnknownDatasetError struct {
	ID string
}

func (e *UnknownDatasetError) Error() string {
	return fmt.Sprintf("unknown dataset %q", e.ID)
}

// Store holds the current Snapshot of every dataset read from a directory of
// plot files. Snapshots are replaced as a whole, so a reader holding one keeps
// a consistent view across a reload.
type Store struct {
	dir   string
	defs  map[string]*Definition
	order []string

	mtx      sync.RWMutex
	snaps    map[string]*Snapshot
	revision uint64

	// One reload per dataset at a time.
	reloading map[string]*sync.Mutex

	listenMtx sync.Mutex
	listeners []func(*Snapshot)
}

// NewStore creates a Store for the plot files in dir. The built-in
// definitions are used if none are given.
func NewStore(dir string, defs ...*Definition) *Store {
	if len(defs) == 0 {
		defs = DefaultDefinitions()
	}
	s := &Store{
		dir:       dir,
		defs:      make(map[string]*Definition, len(defs)),
		snaps:     make(map[string]*Snapshot, len(defs)),
		reloading: make(map[string]*sync.Mutex, len(defs)),
	}
	for _, def := range defs {
		if _, dup := s.defs[def.ID]; dup {
			log.Warnf("Duplicate dataset definition %q ignored", def.ID)
			continue
		}
		s.defs[def.ID] = def
		s.order = append(s.order, def.ID)
		s.reloading[def.ID] = new(sync.Mutex)
	}
	return s
}

// Dir is the plot file directory.
func (s *Store) Dir() string {
	return s.dir
}

// IDs lists the dataset IDs in definition order.
func (s *Store) IDs() []string {
	return append([]string(nil), s.order...)
}

// Definition returns the Definition of a dataset.
func (s *Store) Definition(id string) (*Definition, error) {
	def, found := s.defs[id]
	if !found {
		return nil, &UnknownDatasetError{ID: id}
	}
	return def, nil
}

// Path is the plot file path of a dataset.
func (s *Store) Path(id string) (string, error) {
	def, err := s.Definition(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, def.File), nil
}

// Snapshot returns the current Snapshot of a dataset.
func (s *Store) Snapshot(id string) (*Snapshot, error) {
	if _, err := s.Definition(id); err != nil {
		return nil, err
	}
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	snap, found := s.snaps[id]
	if !found {
		return nil, fmt.Errorf("%s: %w", id, ErrNotLoaded)
	}
	return snap, nil
}

// Revision is incremented each time any snapshot is replaced.
func (s *Store) Revision() uint64 {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.revision
}

// OnUpdate registers a function to be called with each new Snapshot.
func (s *Store) OnUpdate(fn func(*Snapshot)) {
	s.listenMtx.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenMtx.Unlock()
}

// Put publishes a Snapshot, replacing any previous one with the same ID, and
// notifies the OnUpdate listeners.
func (s *Store) Put(snap *Snapshot) error {
	if _, err := s.Definition(snap.ID); err != nil {
		return err
	}
	s.mtx.Lock()
	s.revision++
	snap.Revision = s.revision
	s.snaps[snap.ID] = snap
	s.mtx.Unlock()

	s.listenMtx.Lock()
	listeners := make([]func(*Snapshot), len(s.listeners))
	copy(listeners, s.listeners)
	s.listenMtx.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
	return nil
}

// Reload reads a dataset's plot file and publishes the new Snapshot.
func (s *Store) Reload(id string) (*Snapshot, error) {
	def, err := s.Definition(id)
	if err != nil {
		return nil, err
	}
	reloadMtx := s.reloading[id]
	if !reloadMtx.TryLock() {
		return nil, ErrReloadInProgress
	}
	defer reloadMtx.Unlock()

	start := time.Now()
	path := filepath.Join(s.dir, def.File)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	snap, err := Parse(def, f)
	if err != nil {
		return nil, err
	}
	if fi, err := f.Stat(); err == nil {
		snap.ModTime = fi.ModTime()
		log.Debugf("Read %s (%s) in %v", path, humanize.Bytes(uint64(fi.Size())),
			time.Since(start))
	}

	if err = s.Put(snap); err != nil {
		return nil, err
	}
	log.Infof("Loaded %s data: %s points, last height %d, updated %s", id,
		humanize.Comma(int64(snap.Len())), snap.LastHeight(),
		humanize.Time(time.Unix(snap.LastTime(), 0)))
	return snap, nil
}

// LoadAll reloads every dataset. Failures are logged, and an error is
// returned only if no dataset could be loaded.
func (s *Store) LoadAll() error {
	var loaded int
	var lastErr error
	for _, id := range s.order {
		if _, err := s.Reload(id); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				log.Warnf("No %s plot data at %s", id, s.defs[id].File)
			} else {
				log.Errorf("Failed to load %s data: %v", id, err)
			}
			lastErr = err
			continue
		}
		loaded++
	}
	if loaded == 0 && len(s.order) > 0 {
		return fmt.Errorf("no datasets loaded from %s: %w", s.dir, lastErr)
	}
	return nil
}

// Loaded lists the IDs of datasets that currently have a Snapshot.
func (s *Store) Loaded() []string {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	ids := make([]string, 0, len(s.snaps))
	for _, id := range s.order {
		if _, found := s.snaps[id]; found {
			ids = append(ids, id)
		}
	}
	return ids
}
