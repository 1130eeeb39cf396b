package main

import (
	"reflect"
	"testing"
)

func TestUpdaters(t *testing.T) {
	tests := []struct {
		name    string
		update  []string
		want    []string
		node    bool
		wantErr bool
	}{
		{"default", nil, allUpdaters, true, false},
		{"github only", []string{"github"}, []string{"github"}, false, false},
		{"dedup", []string{"Network", " network", "masternodes"}, []string{"network", "masternodes"}, true, false},
		{"unknown", []string{"network", "zerocoin"}, nil, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config{Update: tt.update}
			got, err := cfg.updaters()
			if (err != nil) != tt.wantErr {
				t.Fatalf("updaters() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("updaters() = %v, want %v", got, tt.want)
			}
			if needsNode(got) != tt.node {
				t.Errorf("needsNode(%v) = %v", got, !tt.node)
			}
		})
	}
}
