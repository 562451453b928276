// Package mux provides the application object: route handling, middleware,
// and the event-protocol request lifecycle the test client drives.
package mux

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/gustweb/gust/httpheader"
	"github.com/gustweb/gust/proto"
	"github.com/gustweb/gust/reqctx"
	"github.com/gustweb/gust/session"
)

// App is the core web application, managing routing, middleware, sessions
// and the request-context stack. It implements proto.Handler.
type App struct {
	routes   map[string]Handler
	wsRoutes map[string]WebsocketHandler
	mw       []Middleware
	logger   *slog.Logger
	tracer   trace.Tracer
	sessions session.Interface
	server   string
	contexts *reqctx.Stack

	mu        sync.Mutex
	preserved *reqctx.Context
}

// Handler processes one request and writes the response.
type Handler func(ctx context.Context, w *ResponseWriter, r *Request) error

// Middleware defines a signature to chain Handler together.
type Middleware func(handler Handler) Handler

// New creates an App with the given options. A no-op tracer, the default
// slog logger, a secretless signed-cookie session interface and the server
// name "localhost" are used unless overridden via options.
func New(optFns ...Option) *App {
	var opts options
	for _, opt := range optFns {
		opt(&opts)
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.tracer == nil {
		opts.tracer = noop.NewTracerProvider().Tracer("no-op tracer")
	}
	if opts.sessions == nil {
		opts.sessions = session.NewSignedCookie(nil)
	}
	if opts.server == "" {
		opts.server = "localhost"
	}

	return &App{
		routes:   make(map[string]Handler),
		wsRoutes: make(map[string]WebsocketHandler),
		mw:       opts.mw,
		logger:   opts.logger,
		tracer:   opts.tracer,
		sessions: opts.sessions,
		server:   opts.server,
		contexts: reqctx.NewStack(),
	}
}

// Use appends the given middleware to the underlying mw stack.
func (a *App) Use(mw ...Middleware) {
	a.mw = append(a.mw, mw...)
}

// Get registers a handler for GET requests at the given path.
func (a *App) Get(path string, fn Handler, mw ...Middleware) {
	a.Handle(http.MethodGet, path, fn, mw...)
}

// Post registers a handler for POST requests at the given path.
func (a *App) Post(path string, fn Handler, mw ...Middleware) {
	a.Handle(http.MethodPost, path, fn, mw...)
}

// Put registers a handler for PUT requests at the given path.
func (a *App) Put(path string, fn Handler, mw ...Middleware) {
	a.Handle(http.MethodPut, path, fn, mw...)
}

// Patch registers a handler for PATCH requests at the given path.
func (a *App) Patch(path string, fn Handler, mw ...Middleware) {
	a.Handle(http.MethodPatch, path, fn, mw...)
}

// Delete registers a handler for DELETE requests at the given path.
func (a *App) Delete(path string, fn Handler, mw ...Middleware) {
	a.Handle(http.MethodDelete, path, fn, mw...)
}

// Handle registers a handler for the given method and path.
func (a *App) Handle(method, path string, handler Handler, mw ...Middleware) {
	handler = wrap(mw, handler)
	a.routes[method+" "+path] = handler
}

// Websocket registers a websocket handler at the given path.
func (a *App) Websocket(path string, handler WebsocketHandler) {
	a.wsRoutes[path] = handler
}

// ServerName returns the host the application considers its own, used as
// the default host header on simulated requests.
func (a *App) ServerName() string {
	return a.server
}

// Sessions returns the application's session interface.
func (a *App) Sessions() session.Interface {
	return a.sessions
}

// Contexts returns the application's request-context stack.
func (a *App) Contexts() *reqctx.Stack {
	return a.contexts
}

// Preserved returns the most recent request context kept alive by a
// preserving exchange, or nil.
func (a *App) Preserved() *reqctx.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.preserved
}

// Serve implements proto.Handler, running one exchange to completion.
func (a *App) Serve(ctx context.Context, scope *proto.Scope, recv proto.Receiver, send proto.Sender) error {
	if scope.Type == proto.ScopeWebsocket {
		return a.serveWebsocket(ctx, scope, recv, send)
	}

	body, err := drainRequestBody(ctx, recv)
	if err != nil {
		return err
	}

	sess, err := a.sessions.Open(ctx, scope)
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	if sess == nil {
		sess = session.NewNull()
	}

	rc := reqctx.New(scope, body)
	rc.Session = sess
	a.contexts.Push(rc)
	defer func() {
		a.contexts.Pop()
		if scope.Preserve {
			rc.MarkPreserved()
			a.setPreserved(rc)
			return
		}
		rc.Release()
	}()

	ctx, span := a.startSpan(ctx, scope)
	defer span.End()

	w := newResponseWriter(scope, send)
	r := &Request{Scope: scope, Body: body, session: sess}

	handler, ok := a.routes[scope.Method+" "+scope.Path]
	if !ok {
		handler = notFound
	}
	handler = wrap(a.mw, handler)

	if err := handler(ctx, w, r); err != nil {
		a.logger.Error("mux", "handle", err)
		if !w.wrote {
			w.status = http.StatusInternalServerError
			w.headers = httpheader.New()
			w.buf.Reset()
			w.buf.WriteString("500 internal server error")
		}
	}

	if !a.sessions.IsNull(sess) && sess.Modified() {
		if err := a.sessions.Save(ctx, sess, w.headers); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
	}

	w.headers.Set("content-length", strconv.Itoa(w.buf.Len()))

	if err := send(ctx, proto.ResponseStart{Status: w.status, Headers: w.headers}); err != nil {
		return err
	}
	if err := send(ctx, proto.ResponseBody{Body: w.buf.Bytes()}); err != nil {
		return err
	}

	return nil
}

func (a *App) setPreserved(rc *reqctx.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.preserved = rc
}

// startSpan initializes the request by adding a span and seeding the
// context with BaseValues for handlers and middleware.
func (a *App) startSpan(ctx context.Context, scope *proto.Scope) (context.Context, trace.Span) {
	ctx, span := a.tracer.Start(ctx, "mux.handler")
	span.SetAttributes(attribute.String("path", scope.Path))

	traceID := span.SpanContext().TraceID().String()
	if !span.SpanContext().TraceID().IsValid() {
		traceID = uuid.New().String()
	}

	v := BaseValues{
		TraceID: traceID,
		Now:     time.Now().UTC(),
		Tracer:  a.tracer,
	}

	return setValues(ctx, &v), span
}

// drainRequestBody collects the full request body from the event stream.
func drainRequestBody(ctx context.Context, recv proto.Receiver) ([]byte, error) {
	var body []byte
	for {
		ev, err := recv(ctx)
		if err != nil {
			return nil, err
		}
		switch ev := ev.(type) {
		case proto.RequestBody:
			body = append(body, ev.Body...)
			if !ev.More {
				return body, nil
			}
		case proto.Disconnect:
			return nil, fmt.Errorf("client disconnected before request completed")
		default:
			return nil, fmt.Errorf("unexpected event %q while reading request body", ev.Type())
		}
	}
}

func notFound(ctx context.Context, w *ResponseWriter, r *Request) error {
	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("404 page not found"))
	return err
}

// wrap middleware around the handler and execute in order given.
func wrap(mw []Middleware, handler Handler) Handler {
	for _, mwFn := range slices.Backward(mw) {
		if mwFn != nil {
			handler = mwFn(handler)
		}
	}

	return handler
}
