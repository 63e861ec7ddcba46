package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// ListenAndServe runs the servers until ctx is done, then lets them finish
// their requests in flight for at most shutdownTimeout. A non positive
// timeout waits for every request.
func ListenAndServe(ctx context.Context, shutdownTimeout time.Duration, servers ...*http.Server) {
	var wg sync.WaitGroup

	for _, s := range servers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			logs.WithTag("addr", s.Addr).Info("starting server")

			switch err := s.ListenAndServe(); err {
			case nil, http.ErrServerClosed:
				logs.WithTag("addr", s.Addr).Info("server stopped")

			default:
				logs.Warn(errors.New("server failed").
					WithTag("addr", s.Addr).
					Wrap(err))
			}
		}()
	}

	<-ctx.Done()

	shutdownCtx := context.WithoutCancel(ctx)
	if shutdownTimeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(shutdownCtx, shutdownTimeout)
		defer cancel()
	}

	for _, s := range servers {
		if err := s.Shutdown(shutdownCtx); err != nil {
			logs.Warn(errors.New("shutting down server failed").
				WithTag("addr", s.Addr).
				WithTag("timeout", shutdownTimeout).
				Wrap(err))
		}
	}

	wg.Wait()
}

// MetricsPathFormatter returns the route of path, with session and quad ids
// replaced by their parameter names. Redirects and client routing errors
// return an empty path so they are not labelled.
func MetricsPathFormatter(statusCode int, path string) string {
	switch statusCode {
	case http.StatusMovedPermanently,
		http.StatusBadRequest,
		http.StatusNotFound,
		http.StatusMethodNotAllowed:
		return ""
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 2 || segments[0] != "sessions" {
		return path
	}

	segments[1] = "{id}"
	if len(segments) == 4 && segments[2] == "quads" {
		segments[3] = "{quad}"
	}
	return "/" + strings.Join(segments, "/")
}
