// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/didip/tollbooth/v6"
	"github.com/didip/tollbooth/v6/limiter"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/docgen"

	apitypes "github.com/explorercharts/chartdata/api/types"
)

type contextKey int

// These are the keys for different types of values stored in a request context.
const (
	ctxAPIDocs contextKey = iota
	ctxChartID
	ctxDatasetID
	ctxRange
	ctxAxis
	ctxIndent
)

// Limiter wraps the tollbooth limiter. Use NewLimiter to create a new Limiter.
type Limiter struct {
	*limiter.Limiter
}

// NewLimiter creates a new Limiter for the given maximum allowed request rate
// in requests per second (may be fractional).
func NewLimiter(max float64) *Limiter {
	return &Limiter{tollbooth.NewLimiter(max, nil)}
}

// Tollbooth creates a new rate limiter middleware using the provided Limiter.
func Tollbooth(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hf := func(w http.ResponseWriter, r *http.Request) {
			// Rate limit using request header.
			httpError := tollbooth.LimitByRequest(l.Limiter, w, r)
			if httpError != nil {
				l.ExecOnLimitReached(w, r)
				w.Header().Add("Content-Type", l.GetMessageContentType())
				w.WriteHeader(httpError.StatusCode)
				// The client may be gone, so just ignore any error on Write.
				_, _ = w.Write([]byte(httpError.Message))
				return
			}
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hf)
	}
}

// Next is a no-op middleware.
func Next(next http.Handler) http.Handler {
	return next
}

// CacheControl creates a new middleware to set the HTTP response header with
// "Cache-Control: max-age=maxAge" where maxAge is in seconds.
func CacheControl(maxAge int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "max-age="+strconv.FormatInt(maxAge, 10))
			next.ServeHTTP(w, r)
		})
	}
}

// Indent creates a middleware for using the specified JSON indentation string
// when the "indent" URL query parameter parses to a true boolean value. Use
// GetIndentCtx with request handlers with the Indent middeware.
func Indent(indent string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			useIndentation := r.URL.Query().Get("indent")
			if useIndentation != "" {
				b, err := strconv.ParseBool(useIndentation)
				if err != nil {
					http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
					return
				}
				if b {
					ctx := context.WithValue(r.Context(), ctxIndent, indent)
					r = r.WithContext(ctx)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetIndentCtx retrieves the ctxIndent data from the request context. If not
// set, the return value is an empty string.
func GetIndentCtx(r *http.Request) string {
	indent, _ := r.Context().Value(ctxIndent).(string)
	return indent
}

// Server sets the Server header element.
func Server(server string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Server", server)
			next.ServeHTTP(w, r)
		})
	}
}

// ChartIDCtx returns a http.HandlerFunc that embeds the value at the url part
// {chartid} into the request context.
func ChartIDCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ctxChartID,
			chi.URLParam(r, "chartid"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetChartIDCtx retrieves the ctxChartID data from the request context. If not
// set, the return value is an empty string.
func GetChartIDCtx(r *http.Request) string {
	chartID, ok := r.Context().Value(ctxChartID).(string)
	if !ok {
		apiLog.Trace("chart ID not set")
		return ""
	}
	return chartID
}

// DatasetIDCtx returns a http.HandlerFunc that embeds the value at the url
// part {datasetid} into the request context.
func DatasetIDCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ctxDatasetID,
			chi.URLParam(r, "datasetid"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetDatasetIDCtx retrieves the ctxDatasetID data from the request context. If
// not set, the return value is an empty string.
func GetDatasetIDCtx(r *http.Request) string {
	datasetID, ok := r.Context().Value(ctxDatasetID).(string)
	if !ok {
		apiLog.Trace("dataset ID not set")
		return ""
	}
	return datasetID
}

// RangeQueryCtx embeds the range request made from the "range", "from" and
// "to" URL query parameters into the request context. Block numbers that are
// not integers are a 400 Bad Request.
func RangeQueryCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		req, err := apitypes.ParseRangeRequest(chi.URLParam(r, "chartid"),
			q.Get("range"), q.Get("from"), q.Get("to"))
		if err != nil {
			apiLog.Debugf("RangeQueryCtx: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ctx := context.WithValue(r.Context(), ctxRange, req)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRangeCtx retrieves the ctxRange data from the request context. If not
// set, the return value is nil.
func GetRangeCtx(r *http.Request) *apitypes.RangeRequest {
	req, _ := r.Context().Value(ctxRange).(*apitypes.RangeRequest)
	return req
}

// AxisQueryCtx embeds the "axis" URL query parameter into the request context.
func AxisQueryCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ctxAxis, r.URL.Query().Get("axis"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAxisCtx retrieves the ctxAxis data from the request context. If not set,
// the return value is an empty string.
func GetAxisCtx(r *http.Request) string {
	axis, _ := r.Context().Value(ctxAxis).(string)
	return axis
}

// APIDocs generates a middleware with a "docs" in the context containing a map
// of the routers handlers, etc.
func APIDocs(mux *chi.Mux) func(next http.Handler) http.Handler {
	var buf bytes.Buffer
	err := json.Indent(&buf, []byte(docgen.JSONRoutesDoc(mux)), "", "\t")
	if err != nil {
		apiLog.Errorf("failed to prepare JSON routes docs: %v", err)
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, http.StatusText(http.StatusInternalServerError),
					http.StatusInternalServerError)
			})
		}
	}
	docs := buf.String()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), ctxAPIDocs, docs)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// APIDirectory is the actual handler used with APIDocs
// (e.g. mux.With(APIDocs(mux)).HandleFunc("/directory", APIDirectory))
func APIDirectory(w http.ResponseWriter, r *http.Request) {
	docs, ok := r.Context().Value(ctxAPIDocs).(string)
	if !ok {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	io.WriteString(w, docs)
}
