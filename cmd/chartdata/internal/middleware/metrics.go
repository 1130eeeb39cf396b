// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chartdata_http_requests_total",
		Help: "Total number of requests by path, method and status_code.",
	}, []string{"path", "method", "status_code"})
	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chartdata_http_requests_in_flight",
		Help: "Current requests being served.",
	})
	HTTPRequestsDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "chartdata_http_requests_duration",
		Help: "Duration of HTTP requests in seconds by path and method.",
	}, []string{"path", "method"})
	ChartRenderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chartdata_chart_render_duration",
		Help:    "Time taken to make a chart frame in seconds, by chart and cache hit.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	}, []string{"chart", "cached"})
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chartdata_websocket_clients",
		Help: "Number of connected websocket clients.",
	})
)

// Metrics counts and times the requests. The route pattern is used as the
// path label, so the label value will be /chart/{chartid} rather than the
// requested chart.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := "UNDEFINED"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		method := strings.ToUpper(r.Method)
		HTTPRequestsTotal.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
		HTTPRequestsDuration.WithLabelValues(path, method).Observe(time.Since(start).Seconds())
	})
}

// ObserveChart records the time taken to make a chart frame. It has the
// signature of charts.ChartData.Observe.
func ObserveChart(chartID string, cached bool, d time.Duration) {
	ChartRenderDuration.WithLabelValues(chartID, strconv.FormatBool(cached)).Observe(d.Seconds())
}
