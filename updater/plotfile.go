// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package updater

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// readPlotFile decodes a plot file into v. Keys of the file that v does not
// know about are returned so they can be written back unchanged. found is
// false if the file does not exist.
func readPlotFile(path string, v interface{}) (extra map[string]json.RawMessage, found bool, err error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err = json.Unmarshal(b, v); err != nil {
		return nil, true, fmt.Errorf("decoding %s: %w", path, err)
	}
	var all map[string]json.RawMessage
	if err = json.Unmarshal(b, &all); err != nil {
		return nil, true, fmt.Errorf("decoding %s: %w", path, err)
	}
	known, err := jsonKeys(v)
	if err != nil {
		return nil, true, err
	}
	for k := range known {
		delete(all, k)
	}
	return all, true, nil
}

func jsonKeys(v interface{}) (map[string]json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	err = json.Unmarshal(b, &m)
	return m, err
}

// writePlotFile encodes v, merged with the extra keys, into path. The file is
// written to a temporary file in the same directory and renamed over path, so
// a reader never sees a partial file.
func writePlotFile(path string, v interface{}, extra map[string]json.RawMessage) error {
	out, err := jsonKeys(v)
	if err != nil {
		return err
	}
	for k, msg := range extra {
		if _, found := out[k]; !found {
			out[k] = msg
		}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // fails harmlessly after the rename

	if _, err = tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	if err = os.Rename(tmpName, path); err != nil {
		return err
	}
	log.Debugf("Wrote %s (%d bytes)", path, len(b))
	return nil
}

// truncate drops the last n points of a slice.
func truncate[T any](s []T, n int) []T {
	if n >= len(s) {
		return s[:0]
	}
	return s[:len(s)-n]
}
