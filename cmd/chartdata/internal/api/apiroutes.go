// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"time"

	humanize "github.com/dustin/go-humanize"

	apitypes "github.com/explorercharts/chartdata/api/types"
	m "github.com/explorercharts/chartdata/cmd/chartdata/internal/middleware"
	"github.com/explorercharts/chartdata/charts"
	"github.com/explorercharts/chartdata/dataset"
	"github.com/explorercharts/chartdata/sampler"
)

// DataSource provides the dataset definitions and their current snapshots.
// *dataset.Store satisfies DataSource.
type DataSource interface {
	IDs() []string
	Definition(id string) (*dataset.Definition, error)
	Snapshot(id string) (*dataset.Snapshot, error)
}

// chartdata application context used by all route handlers
type appContext struct {
	DataSource DataSource
	Status     *apitypes.Status
	charts     *charts.ChartData
}

// AppContextConfig is the configuration for the appContext and the only
// argument to its constructor.
type AppContextConfig struct {
	DataSource DataSource
	Charts     *charts.ChartData
	Status     *apitypes.Status
	AppVer     string
}

// NewContext constructs a new appContext from the dataset source and the
// chart cache.
func NewContext(cfg *AppContextConfig) *appContext {
	// DataSource is an interface that could have a value of pointer type.
	if cfg.DataSource == nil || reflect.ValueOf(cfg.DataSource).IsNil() {
		log.Errorf("NewContext: a DataSource is required.")
		return nil
	}
	if cfg.Charts == nil {
		log.Errorf("NewContext: a ChartData is required.")
		return nil
	}

	status := cfg.Status
	if status == nil {
		status = apitypes.NewStatus(len(cfg.DataSource.IDs()), APIVersion, cfg.AppVer)
	}

	return &appContext{
		DataSource: cfg.DataSource,
		Status:     status,
		charts:     cfg.Charts,
	}
}

// root is a http.Handler intended for the API root path. This essentially
// provides a heartbeat, and no information about the application status.
func (c *appContext) root(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprint(w, "chartdata api running")
}

func writeJSON(w http.ResponseWriter, thing interface{}, indent string) {
	writeJSONWithStatus(w, thing, http.StatusOK, indent)
}

func writeJSONWithStatus(w http.ResponseWriter, thing interface{}, code int, indent string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", indent)
	if err := encoder.Encode(thing); err != nil {
		log.Infof("JSON encode error: %v", err)
	}
}

// writeJSONBytes prepares the headers for pre-encoded JSON and writes the JSON
// bytes.
func writeJSONBytes(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, err := w.Write(data)
	if err != nil {
		log.Warnf("ResponseWriter.Write error: %v", err)
	}
}

// errorStatus is the HTTP status code for an error from the chart and dataset
// packages.
func errorStatus(err error) int {
	var unknownChart *charts.UnknownChartIDError
	var unknownDataset *dataset.UnknownDatasetError
	var invalidRange *sampler.InvalidRangeError
	var unknownPreset *sampler.UnknownPresetError
	switch {
	case errors.As(err, &unknownChart), errors.As(err, &unknownDataset):
		return http.StatusNotFound
	case errors.As(err, &invalidRange), errors.As(err, &unknownPreset):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dataset.ErrNotLoaded), errors.Is(err, charts.ErrEmptyDataset):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError writes err as an ErrorResponse. An invalid range is reported
// with the same message shown by the explorer pages.
func writeError(w http.ResponseWriter, r *http.Request, err error, chartID string) {
	code := errorStatus(err)
	resp := &apitypes.ErrorResponse{Error: err.Error(), Chart: chartID}
	var invalidRange *sampler.InvalidRangeError
	if errors.As(err, &invalidRange) {
		resp.Error = sampler.InvalidRangeMessage
	}
	if code == http.StatusInternalServerError {
		log.Errorf("%s: %v", r.URL.Path, err)
		resp.Error = http.StatusText(code)
	} else {
		log.Debugf("%s: %v", r.URL.Path, err)
	}
	writeJSONWithStatus(w, resp, code, m.GetIndentCtx(r))
}

func uptime(started time.Time) string {
	return humanize.RelTime(started, time.Now(), "", "")
}

func (c *appContext) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, c.Status.API(uptime), m.GetIndentCtx(r))
}

// route: /charts
func (c *appContext) getCharts(w http.ResponseWriter, r *http.Request) {
	presets := sampler.Presets()
	ranges := make([]string, 0, len(presets))
	for _, p := range presets {
		ranges = append(ranges, string(p))
	}
	specs := c.charts.Registry().Specs()
	infos := make([]*apitypes.ChartInfo, 0, len(specs))
	for _, spec := range specs {
		info := &apitypes.ChartInfo{
			ID:       spec.ID,
			Title:    spec.Title,
			Aliases:  spec.Aliases,
			Dataset:  spec.Dataset,
			Step:     spec.Step,
			Target:   spec.Target,
			Labelset: string(spec.Labelset),
			Full:     spec.Full,
			Latest:   spec.Latest,
			Series:   spec.SeriesNames(),
		}
		if !spec.Full && !spec.Latest {
			info.Ranges = ranges
		}
		infos = append(infos, info)
	}
	writeJSON(w, infos, m.GetIndentCtx(r))
}

// route: /chart/{chartid}?range=&from=&to=&axis=
func (c *appContext) getChart(w http.ResponseWriter, r *http.Request) {
	chartID := m.GetChartIDCtx(r)
	req := m.GetRangeCtx(r)
	if req == nil {
		req = &apitypes.RangeRequest{Chart: chartID}
	}
	sel, err := req.Selection()
	if err != nil {
		var unknownPreset *sampler.UnknownPresetError
		if errors.As(err, &unknownPreset) {
			writeError(w, r, err, chartID)
			return
		}
		writeJSONWithStatus(w, &apitypes.ErrorResponse{Error: err.Error(), Chart: chartID},
			http.StatusBadRequest, m.GetIndentCtx(r))
		return
	}

	var set sampler.Labelset
	if axis := m.GetAxisCtx(r); axis != "" {
		if set, err = sampler.ParseLabelset(axis); err != nil {
			writeJSONWithStatus(w, &apitypes.ErrorResponse{Error: err.Error(), Chart: chartID},
				http.StatusBadRequest, m.GetIndentCtx(r))
			return
		}
	}

	chartData, err := c.charts.Chart(chartID, sel, set)
	if err != nil {
		writeError(w, r, err, chartID)
		return
	}
	writeJSONBytes(w, chartData)
}

func (c *appContext) datasetSummary(id string) (*apitypes.DatasetSummary, error) {
	def, err := c.DataSource.Definition(id)
	if err != nil {
		return nil, err
	}
	summary := &apitypes.DatasetSummary{
		ID:     def.ID,
		File:   def.File,
		Charts: c.charts.Registry().ForDataset(def.ID),
	}
	snap, err := c.DataSource.Snapshot(def.ID)
	if errors.Is(err, dataset.ErrNotLoaded) {
		return summary, nil
	}
	if err != nil {
		return nil, err
	}
	summary.Loaded = true
	summary.Points = snap.Len()
	summary.LastHeight = snap.LastHeight()
	summary.LastTime = snap.LastTime()
	summary.LastBlockHash = snap.LastBlockHash
	summary.Revision = snap.Revision
	summary.Columns = snap.ColumnNames()
	if !snap.ModTime.IsZero() {
		summary.Modified = snap.ModTime.UTC().Format(time.RFC3339)
	}
	return summary, nil
}

// route: /datasets
func (c *appContext) getDatasets(w http.ResponseWriter, r *http.Request) {
	ids := c.DataSource.IDs()
	summaries := make([]*apitypes.DatasetSummary, 0, len(ids))
	for _, id := range ids {
		summary, err := c.datasetSummary(id)
		if err != nil {
			writeError(w, r, err, "")
			return
		}
		summaries = append(summaries, summary)
	}
	writeJSON(w, summaries, m.GetIndentCtx(r))
}

// route: /dataset/{datasetid}
func (c *appContext) getDataset(w http.ResponseWriter, r *http.Request) {
	summary, err := c.datasetSummary(m.GetDatasetIDCtx(r))
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	writeJSON(w, summary, m.GetIndentCtx(r))
}

// route: /dataset/{datasetid}/latest
func (c *appContext) getDatasetLatest(w http.ResponseWriter, r *http.Request) {
	snap, err := c.DataSource.Snapshot(m.GetDatasetIDCtx(r))
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	if snap.Len() == 0 {
		writeError(w, r, charts.ErrEmptyDataset, "")
		return
	}
	writeJSON(w, &apitypes.DatasetLatest{
		ID:       snap.ID,
		Height:   snap.LastHeight(),
		Time:     snap.LastTime(),
		Revision: snap.Revision,
		Values:   snap.Latest(),
	}, m.GetIndentCtx(r))
}
