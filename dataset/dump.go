// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package dataset

import (
	"encoding/gob"
	"os"
	"time"
)

// storeGobject is the gob encoded form of a Store's snapshots.
type storeGobject struct {
	Snapshots []*Snapshot
}

func isfileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !os.IsNotExist(err)
}

// writeCacheFile dumps the current snapshots into the file at filePath using
// the .gob encoding. The old dump is removed before the new one is written so
// that a dump is still available after a crash during loading.
func (s *Store) writeCacheFile(filePath string) error {
	if isfileExists(filePath) {
		os.RemoveAll(filePath)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	s.mtx.RLock()
	gobject := &storeGobject{Snapshots: make([]*Snapshot, 0, len(s.snaps))}
	for _, id := range s.order {
		if snap, found := s.snaps[id]; found {
			gobject.Snapshots = append(gobject.Snapshots, snap)
		}
	}
	s.mtx.RUnlock()

	return gob.NewEncoder(file).Encode(gobject)
}

// readCacheFile reads a .gob dump and publishes each snapshot for which the
// store has no data yet. The number of restored snapshots is returned.
func (s *Store) readCacheFile(filePath string) (int, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	gobject := new(storeGobject)
	if err = gob.NewDecoder(file).Decode(gobject); err != nil {
		return 0, err
	}

	var restored int
	for _, snap := range gobject.Snapshots {
		if _, err := s.Definition(snap.ID); err != nil {
			log.Debugf("Skipping dumped dataset %q: %v", snap.ID, err)
			continue
		}
		if _, err := s.Snapshot(snap.ID); err == nil {
			continue
		}
		if _, err := ValidateLengths(snap.lengthers()...); err != nil {
			log.Warnf("Discarding dumped %s data: %v", snap.ID, err)
			continue
		}
		if err := s.Put(snap); err != nil {
			return restored, err
		}
		restored++
	}
	return restored, nil
}

// LoadDump restores datasets missing from the store from the gob file at the
// given path.
func (s *Store) LoadDump(dumpPath string) int {
	t := time.Now()
	restored, err := s.readCacheFile(dumpPath)
	if err != nil {
		log.Debugf("Cache dump data loading failed: %v", err)
		return 0
	}
	if restored > 0 {
		log.Infof("Restored %d datasets from %s in %v", restored, dumpPath, time.Since(t))
	}
	return restored
}

// Dump writes the current snapshots to a gob file at the given path.
func (s *Store) Dump(dumpPath string) {
	err := s.writeCacheFile(dumpPath)
	if err != nil {
		log.Errorf("Store.writeCacheFile failed: %v", err)
	} else {
		log.Debug("Dumping the datasets was successful")
	}
}
