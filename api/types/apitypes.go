// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/explorercharts/chartdata/sampler"
)

// ChartInfo describes a registered chart.
type ChartInfo struct {
	ID       string   `json:"id"`
	Title    string   `json:"title,omitempty"`
	Aliases  []string `json:"aliases,omitempty"`
	Dataset  string   `json:"dataset"`
	Step     int      `json:"step"`
	Target   int      `json:"target"`
	Labelset string   `json:"labelset"`
	Full     bool     `json:"full,omitempty"`
	Latest   bool     `json:"latest,omitempty"`
	Series   []string `json:"series"`
	// Ranges are the named ranges the chart accepts. Full and Latest charts
	// take none.
	Ranges []string `json:"ranges,omitempty"`
}

// DatasetSummary describes the loaded state of a dataset.
type DatasetSummary struct {
	ID            string   `json:"id"`
	File          string   `json:"file"`
	Loaded        bool     `json:"loaded"`
	Points        int      `json:"points"`
	LastHeight    int64    `json:"last_height"`
	LastTime      int64    `json:"last_time"`
	LastBlockHash string   `json:"last_block_hash,omitempty"`
	Revision      uint64   `json:"revision"`
	Modified      string   `json:"modified,omitempty"`
	Columns       []string `json:"columns,omitempty"`
	Charts        []string `json:"charts,omitempty"`
}

// DatasetLatest is the newest point of every column of a dataset.
type DatasetLatest struct {
	ID       string             `json:"id"`
	Height   int64              `json:"height"`
	Time     int64              `json:"time"`
	Revision uint64             `json:"revision"`
	Values   map[string]float64 `json:"values"`
}

// ErrorResponse is the body of a failed API request.
type ErrorResponse struct {
	Error string `json:"error"`
	Chart string `json:"chart,omitempty"`
}

// Status indicates the state of the server, including the API version and the
// software version. Status is safe for concurrent use.
type Status struct {
	mtx      sync.RWMutex
	ready    bool
	loaded   int
	datasets int
	revision uint64
	clients  int
	started  time.Time
	api      int
	version  string
}

// StatusAPI is the JSON form of a Status.
type StatusAPI struct {
	Ready          bool   `json:"ready"`
	DatasetsLoaded int    `json:"datasets_loaded"`
	Datasets       int    `json:"datasets"`
	Revision       uint64 `json:"revision"`
	Clients        int    `json:"websocket_clients"`
	Uptime         string `json:"uptime"`
	APIVersion     int    `json:"api_version"`
	Version        string `json:"chartdata_version"`
}

// NewStatus creates a Status for a server with the given number of datasets.
func NewStatus(datasets, apiVersion int, version string) *Status {
	return &Status{
		datasets: datasets,
		started:  time.Now(),
		api:      apiVersion,
		version:  version,
	}
}

// SetLoaded sets the number of loaded datasets and the store revision. The
// server is ready once any dataset is loaded.
func (s *Status) SetLoaded(loaded int, revision uint64) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.loaded = loaded
	s.revision = revision
	s.ready = loaded > 0
}

// SetClients sets the number of connected websocket clients.
func (s *Status) SetClients(n int) {
	s.mtx.Lock()
	s.clients = n
	s.mtx.Unlock()
}

// Ready indicates if any dataset is loaded.
func (s *Status) Ready() bool {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.ready
}

// API returns a copy of the status for encoding, with the uptime formatted by
// uptime.
func (s *Status) API(uptime func(time.Time) string) *StatusAPI {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return &StatusAPI{
		Ready:          s.ready,
		DatasetsLoaded: s.loaded,
		Datasets:       s.datasets,
		Revision:       s.revision,
		Clients:        s.clients,
		Uptime:         uptime(s.started),
		APIVersion:     s.api,
		Version:        s.version,
	}
}

// RangeRequest selects the range of a chart. A preset name in Range takes
// precedence over block bounds. When neither is given, the chart's initial
// range is used.
type RangeRequest struct {
	Chart string `json:"chart"`
	Range string `json:"range,omitempty"`
	From  *int64 `json:"from,omitempty"`
	To    *int64 `json:"to,omitempty"`
}

// Selection converts the request to a range selection. A nil Selection with
// a nil error means the initial range.
func (r *RangeRequest) Selection() (*sampler.Selection, error) {
	if r.Range != "" {
		preset, err := sampler.ParsePreset(r.Range)
		if err != nil {
			return nil, err
		}
		sel := sampler.PresetSelection(preset)
		return &sel, nil
	}
	if r.From == nil && r.To == nil {
		return nil, nil
	}
	if r.From == nil || r.To == nil {
		return nil, fmt.Errorf("both from and to are required for a block range")
	}
	sel := sampler.BlockSelection(*r.From, *r.To)
	return &sel, nil
}

// ParseRangeRequest builds a RangeRequest from the range, from and to URL
// query values.
func ParseRangeRequest(chart, rangeName, from, to string) (*RangeRequest, error) {
	req := &RangeRequest{Chart: chart, Range: rangeName}
	parse := func(s string) (*int64, error) {
		if s == "" {
			return nil, nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid block number %q", s)
		}
		return &v, nil
	}
	var err error
	if req.From, err = parse(from); err != nil {
		return nil, err
	}
	if req.To, err = parse(to); err != nil {
		return nil, err
	}
	return req, nil
}

// AxisRequest selects the label set shown on a chart's x axis.
type AxisRequest struct {
	Chart string `json:"chart"`
	Axis  string `json:"axis"`
}

// InitRequest starts a websocket session with a set of charts. All charts
// are drawn when Charts is empty.
type InitRequest struct {
	Charts []string `json:"charts"`
}

// DatasetUpdate is pushed to websocket clients after a dataset is replaced.
type DatasetUpdate struct {
	ID         string `json:"id"`
	Revision   uint64 `json:"revision"`
	Points     int    `json:"points"`
	LastHeight int64  `json:"last_height"`
}

// WebSocketMessage represents the JSON object used to send and receive typed
// messages to the web client.
type WebSocketMessage struct {
	EventId string          `json:"event"`
	Message json.RawMessage `json:"message"`
}

// Client and server websocket events.
const (
	EventInit          = "init"
	EventSetRange      = "setrange"
	EventSetAxis       = "setaxis"
	EventChart         = "chart"
	EventError         = "error"
	EventDatasetUpdate = "datasetupdate"
	EventPing          = "ping"
	EventBye           = "bye"
)

// NewWebSocketMessage encodes msg into a WebSocketMessage for the event.
func NewWebSocketMessage(event string, msg interface{}) (*WebSocketMessage, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return &WebSocketMessage{EventId: event, Message: b}, nil
}
