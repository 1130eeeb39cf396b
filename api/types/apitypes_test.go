package types

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/explorercharts/chartdata/sampler"
)

func int64p(v int64) *int64 { return &v }

func TestRangeRequestSelection(t *testing.T) {
	tests := []struct {
		testName string
		req      RangeRequest
		want     *sampler.Selection
		wantErr  bool
	}{
		{"initial", RangeRequest{}, nil, false},
		{"preset", RangeRequest{Range: "last_week"}, &sampler.Selection{Preset: sampler.PresetWeek}, false},
		{"short preset", RangeRequest{Range: "year"}, &sampler.Selection{Preset: sampler.PresetYear}, false},
		{"preset wins", RangeRequest{Range: "all", From: int64p(1)}, &sampler.Selection{Preset: sampler.PresetAll}, false},
		{"blocks", RangeRequest{From: int64p(100), To: int64p(500)},
			&sampler.Selection{Custom: true, BlockFrom: 100, BlockTo: 500}, false},
		{"half bounds", RangeRequest{From: int64p(100)}, nil, true},
		{"bad preset", RangeRequest{Range: "decade"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.testName, func(t *testing.T) {
			got, err := tt.req.Selection()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Selection() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Selection() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseRangeRequest(t *testing.T) {
	req, err := ParseRangeRequest("fees", "", "100", "500")
	if err != nil {
		t.Fatal(err)
	}
	if *req.From != 100 || *req.To != 500 || req.Chart != "fees" {
		t.Errorf("unexpected request %+v", req)
	}
	if _, err = ParseRangeRequest("fees", "", "1e3", ""); err == nil {
		t.Errorf("expected an error for a non-integer block")
	}
}

func TestWebSocketMessage(t *testing.T) {
	msg, err := NewWebSocketMessage(EventSetAxis, &AxisRequest{Chart: "fees", Axis: "time"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"event":"setaxis","message":{"chart":"fees","axis":"time"}}`
	if string(b) != want {
		t.Errorf("got %s, want %s", b, want)
	}
}

func TestStatus(t *testing.T) {
	s := NewStatus(4, 1, "1.0.0")
	if s.Ready() {
		t.Errorf("ready before any dataset was loaded")
	}
	s.SetLoaded(2, 7)
	s.SetClients(3)
	api := s.API(func(time.Time) string { return "now" })
	want := &StatusAPI{
		Ready:          true,
		DatasetsLoaded: 2,
		Datasets:       4,
		Revision:       7,
		Clients:        3,
		Uptime:         "now",
		APIVersion:     1,
		Version:        "1.0.0",
	}
	if !reflect.DeepEqual(api, want) {
		t.Errorf("API() = %+v, want %+v", api, want)
	}
}
