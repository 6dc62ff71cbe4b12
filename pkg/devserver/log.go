package devserver

import (
	"context"
	"net/http"
	"time"

	"github.com/aidarkhanov/nanoid"
	"github.com/rs/zerolog"
)

type logPtr struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(data []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}

	n, err := r.ResponseWriter.Write(data)
	r.size += n
	return n, err
}

// makeLogMiddleware attaches a logger with a request id to each request and logs the response.
func makeLogMiddleware(base *zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := base.With().Str("req", nanoid.New()).Logger()

		ctx := context.WithValue(r.Context(), logPtr{}, &logger)
		r = r.WithContext(ctx)

		rec := &statusRecorder{ResponseWriter: rw}
		path := r.URL.Path
		next.ServeHTTP(rec, r)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		event := logger.Debug()
		if rec.status >= 500 {
			event = logger.Error()
		} else if rec.status >= 400 {
			event = logger.Warn()
		}

		event.Str("method", r.Method).
			Int("status", rec.status).
			Int("size", rec.size).
			Dur("duration", time.Since(start)).
			Msgf("%s %s", r.Method, path)
	})
}

// Log returns the request's logger. Outside of requests, a disabled logger is returned.
func Log(ctx context.Context) *zerolog.Logger {
	logger := ctx.Value(logPtr{})
	if logger == nil {
		nop := zerolog.Nop()
		return &nop
	}

	return logger.(*zerolog.Logger)
}
