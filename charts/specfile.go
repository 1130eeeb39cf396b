// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package charts

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type specFile struct {
	Charts []*Spec `yaml:"charts"`
}

// LoadSpecFile reads chart specs from a YAML file of the form
//
//	charts:
//	  - id: difficulty
//	    dataset: network
//	    metrics:
//	      - name: difficulty
//	      - name: blocktime
//	        policy: average
func LoadSpecFile(path string) ([]*Spec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f specFile
	if err = yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, spec := range f.Charts {
		if err = spec.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return f.Charts, nil
}

// ApplySpecFile loads a spec file and overrides the registered charts with
// its specs. The number of charts applied is returned.
func ApplySpecFile(r *Registry, path string) (int, error) {
	specs, err := LoadSpecFile(path)
	if err != nil {
		return 0, err
	}
	for _, spec := range specs {
		if err = r.Override(spec); err != nil {
			return 0, err
		}
	}
	return len(specs), nil
}
