// Package middleware holds the HTTP middleware shared by the harness API.
package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/psantana5/crashloop/pkg/logging"
)

// Recorder receives one observation per served request.
type Recorder interface {
	RecordHTTP(method, route string, status int, d time.Duration)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// RouteName returns the matched mux path template, or the raw path when
// the request did not go through a mux route.
func RouteName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// Observe logs every request and reports it to rec when rec is non-nil.
func Observe(logger *logging.Logger, rec Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sr, r)

			elapsed := time.Since(start)
			route := RouteName(r)
			if rec != nil {
				rec.RecordHTTP(r.Method, route, sr.status, elapsed)
			}
			logger.Debug("HTTP request", map[string]interface{}{
				"method":   r.Method,
				"route":    route,
				"status":   sr.status,
				"duration": elapsed.String(),
			})
		})
	}
}

// CORS allows any origin, as browser dashboards call the API cross-origin.
// Preflight requests are answered directly.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SkipPaths returns a predicate matching the given exact paths.
func SkipPaths(paths ...string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.URL.Path]
		return ok
	}
}
