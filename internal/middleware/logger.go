package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Logger emits one structured access-log line per request and exposes the
// handling duration to clients through the X-Process-Time header.
func Logger(l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			// Headers must be set before the handler writes them out.
			trailer := func() {
				elapsed := time.Since(start)
				rw.Header().Set("X-Process-Time", strconv.FormatFloat(elapsed.Seconds(), 'f', 4, 64))
			}
			next.ServeHTTP(&timedWriter{responseWriter: rw, once: trailer}, r)

			l.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rw.status).
				Str("request_id", RequestIDFromContext(r.Context())).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

// timedWriter stamps X-Process-Time right before the first byte of the
// response goes out.
type timedWriter struct {
	*responseWriter
	once func()
	done bool
}

func (tw *timedWriter) WriteHeader(code int) {
	if !tw.done {
		tw.done = true
		tw.once()
	}
	tw.responseWriter.WriteHeader(code)
}

func (tw *timedWriter) Write(b []byte) (int, error) {
	if !tw.done {
		tw.done = true
		tw.once()
	}
	return tw.responseWriter.Write(b)
}
