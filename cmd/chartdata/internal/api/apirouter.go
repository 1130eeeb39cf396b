// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	m "github.com/explorercharts/chartdata/cmd/chartdata/internal/middleware"
)

type apiMux struct {
	*chi.Mux
}

// NewAPIRouter creates a new HTTP request path router/mux for the given API,
// appContext.
func NewAPIRouter(app *appContext, JSONIndent string, useRealIP, compressLarge bool) apiMux {
	// chi router
	mux := StackedMux(useRealIP)
	mux.Use(m.Metrics)

	// Check for and validate the "indent" URL query. Each API request handler
	// may now access the configured indentation string if indent was specified
	// and parsed as a boolean, otherwise the empty string, from
	// m.GetIndentCtx(*http.Request).
	mux.Use(m.Indent(JSONIndent))

	mux.Get("/", app.root)
	mux.Get("/status", app.status)

	compMiddleware := m.Next
	if compressLarge {
		log.Debug("Enabling compressed responses for chart frames.")
		compMiddleware = middleware.Compress(3)
	}

	mux.Get("/charts", app.getCharts)
	mux.Route("/chart/{chartid}", func(r chi.Router) {
		r.Use(m.ChartIDCtx, m.RangeQueryCtx, m.AxisQueryCtx)
		r.With(compMiddleware).Get("/", app.getChart)
	})

	mux.Get("/datasets", app.getDatasets)
	mux.Route("/dataset/{datasetid}", func(r chi.Router) {
		r.Use(m.DatasetIDCtx)
		r.Get("/", app.getDataset)
		r.Get("/latest", app.getDatasetLatest)
	})

	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, r.URL.RequestURI()+" ain't no chart I've ever heard of! (404)", http.StatusNotFound)
	})

	var listRoutePatterns func(routes []chi.Route) []string
	listRoutePatterns = func(routes []chi.Route) []string {
		patterns := []string{}
		for _, rt := range routes {
			patterns = append(patterns, strings.Replace(rt.Pattern, "/*", "", -1))
			if rt.SubRoutes == nil {
				continue
			}
			for _, pt := range listRoutePatterns(rt.SubRoutes.Routes()) {
				patterns = append(patterns, strings.Replace(rt.Pattern+pt, "/*", "", -1))
			}
		}
		return patterns
	}

	mux.HandleFunc("/list", func(w http.ResponseWriter, _ *http.Request) {
		routeList := listRoutePatterns(mux.Routes())
		writeJSON(w, routeList, JSONIndent)
	})

	mux.With(m.APIDocs(mux)).HandleFunc("/directory", m.APIDirectory)

	return apiMux{mux}
}

type loggerFunc func(string, ...interface{})

func (lw loggerFunc) Printf(str string, args ...interface{}) {
	lw(str, args...)
}

// StackedMux creates a router with the middleware common to every router of
// the server.
func StackedMux(useRealIP bool) *chi.Mux {
	mux := chi.NewRouter()
	if useRealIP {
		mux.Use(middleware.RealIP)
	}
	mux.Use(middleware.Logger)
	mux.Use(middleware.Recoverer)
	corsMW := cors.Default()
	corsMW.Log = loggerFunc(log.Tracef)
	mux.Use(corsMW.Handler)
	return mux
}
