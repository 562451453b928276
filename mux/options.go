package mux

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/gustweb/gust/session"
)

// Option configures an App created by [New].
type Option func(*options)

type options struct {
	logger   *slog.Logger
	tracer   trace.Tracer
	sessions session.Interface
	server   string
	mw       []Middleware
}

// WithLogger sets the logger used for request handling errors.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTracer sets the tracer used to span request handling.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithSessions replaces the default secretless session interface.
func WithSessions(sessions session.Interface) Option {
	return func(o *options) {
		o.sessions = sessions
	}
}

// WithServerName sets the host the application answers for. Defaults to
// "localhost".
func WithServerName(name string) Option {
	return func(o *options) {
		o.server = name
	}
}

// WithMiddleware sets the app-level middleware stack.
func WithMiddleware(mw ...Middleware) Option {
	return func(o *options) {
		o.mw = mw
	}
}

// WithSecretKey is shorthand for WithSessions with a signed-cookie
// interface using the given secret.
func WithSecretKey(secret []byte) Option {
	return func(o *options) {
		o.sessions = session.NewSignedCookie(secret)
	}
}
