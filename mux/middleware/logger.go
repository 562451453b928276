// Package middleware provides app-level middleware for the mux package.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gustweb/gust/mux"
)

// Logger logs the start and completion of every request.
func Logger(log *slog.Logger) mux.Middleware {
	m := func(handler mux.Handler) mux.Handler {
		h := func(ctx context.Context, w *mux.ResponseWriter, r *mux.Request) error {
			v := mux.GetValues(ctx)

			path := r.Path()
			if len(r.Scope.QueryString) > 0 {
				path = fmt.Sprintf("%s?%s", path, r.Scope.QueryString)
			}

			log.Info("request started", "method", r.Method(), "path", path, "traceid", v.TraceID)

			err := handler(ctx, w, r)

			log.Info("request completed", "method", r.Method(), "path", path, "traceid", v.TraceID, "statusCode", w.Status(), "since", time.Since(v.Now).String())

			return err
		}

		return h
	}

	return m
}
