// Package client exposes an in-process test client that simulates HTTP and
// WebSocket traffic against an application without opening a network socket,
// by driving the application's scope/receive/send protocol directly.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/gustweb/gust/errs"
	"github.com/gustweb/gust/proto"
	"github.com/gustweb/gust/reqctx"
	"github.com/gustweb/gust/session"
	"github.com/gustweb/gust/throttle"
)

// defaultMaxRedirects caps redirect following so a 3xx response pointing at
// itself cannot loop forever.
const defaultMaxRedirects = 20

// App is the application under test as the client consumes it: the protocol
// entry point plus the capabilities the client needs around it.
type App interface {
	proto.Handler

	// ServerName is the default host header for simulated requests.
	ServerName() string

	// Sessions is the application's pluggable session capability.
	Sessions() session.Interface

	// Contexts is the application's request-context stack.
	Contexts() *reqctx.Stack

	// Preserved returns the request context kept alive by the most recent
	// preserving exchange, or nil.
	Preserved() *reqctx.Context
}

// Client orchestrates simulated exchanges against one application: building
// scopes, driving connections, persisting cookies across requests, following
// redirects, and running session transactions.
//
// The cookie jar and push-promise list are unsynchronized per-client state;
// callers must serialize concurrent exchanges on one Client.
type Client struct {
	app          App
	jar          http.CookieJar
	logger       *slog.Logger
	tracer       trace.Tracer
	limiter      *throttle.Limiter
	maxRedirects int

	preserve     bool
	pushPromises []PushPromise
}

// Build creates a Client for the given application. Cookies are enabled
// unless disabled via [WithoutCookies].
func Build(app App, optFns ...Option) (*Client, error) {
	if app == nil {
		return nil, fmt.Errorf("app must not be nil")
	}

	client := &Client{
		app:          app,
		logger:       slog.Default(),
		tracer:       noop.NewTracerProvider().Tracer("no-op tracer"),
		maxRedirects: defaultMaxRedirects,
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	if opts.logger != nil {
		client.logger = opts.logger
	}
	if opts.tracer != nil {
		client.tracer = opts.tracer
	}
	if opts.maxRedirects != nil {
		client.maxRedirects = *opts.maxRedirects
	}

	if !opts.noCookies {
		jar, err := newJar()
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		client.jar = jar
	}

	if opts.throttleRPS > 0 {
		limiter, err := throttle.New(opts.throttleRPS, opts.throttleBurst, func() *slog.Logger { return client.logger })
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		client.limiter = limiter
	}

	return client, nil
}

// PushPromises returns the push promises reported during the most recent
// Open call, including its redirect hops.
func (c *Client) PushPromises() []PushPromise {
	return c.pushPromises
}

// Open executes one complete simulated request and returns the response.
// The push-promise accumulator is reset at the start of each call, not per
// redirect hop.
func (c *Client) Open(ctx context.Context, method, path string, optFns ...RequestOption) (*Response, error) {
	o, err := buildRequestOpts(optFns)
	if err != nil {
		return nil, fmt.Errorf("applying request option: %w", err)
	}
	if o.scheme == "" {
		o.scheme = "http"
	}

	ctx, span := c.tracer.Start(ctx, "client.open")
	span.SetAttributes(attribute.String("method", method), attribute.String("path", path))
	defer span.End()

	c.pushPromises = nil

	response, err := c.makeRequest(ctx, method, path, o)
	if err != nil {
		return nil, err
	}

	if o.follow {
		hops := 0
		for response.StatusCode >= 300 && response.StatusCode <= 399 {
			hops++
			if hops > c.maxRedirects {
				return nil, errs.Newf(errs.KindRedirect, "stopped following redirects after %d hops", c.maxRedirects)
			}

			// Most browsers respond to an HTTP 302 with a GET request to the new
			// location, despite what the HTTP spec says. HTTP 303 should always be
			// responded to with a GET request.
			if response.StatusCode == http.StatusFound || response.StatusCode == http.StatusSeeOther {
				method = http.MethodGet
			}

			response, err = c.makeRequest(ctx, method, response.Location(), o)
			if err != nil {
				return nil, err
			}
		}
	}

	if c.preserve {
		c.app.Contexts().Push(c.app.Preserved())
	}

	return response, nil
}

// Get makes a GET request. See [Client.Open] for argument details.
func (c *Client) Get(ctx context.Context, path string, optFns ...RequestOption) (*Response, error) {
	return c.Open(ctx, http.MethodGet, path, optFns...)
}

// Post makes a POST request. See [Client.Open] for argument details.
func (c *Client) Post(ctx context.Context, path string, optFns ...RequestOption) (*Response, error) {
	return c.Open(ctx, http.MethodPost, path, optFns...)
}

// Put makes a PUT request. See [Client.Open] for argument details.
func (c *Client) Put(ctx context.Context, path string, optFns ...RequestOption) (*Response, error) {
	return c.Open(ctx, http.MethodPut, path, optFns...)
}

// Patch makes a PATCH request. See [Client.Open] for argument details.
func (c *Client) Patch(ctx context.Context, path string, optFns ...RequestOption) (*Response, error) {
	return c.Open(ctx, http.MethodPatch, path, optFns...)
}

// Delete makes a DELETE request. See [Client.Open] for argument details.
func (c *Client) Delete(ctx context.Context, path string, optFns ...RequestOption) (*Response, error) {
	return c.Open(ctx, http.MethodDelete, path, optFns...)
}

// Head makes a HEAD request. See [Client.Open] for argument details.
func (c *Client) Head(ctx context.Context, path string, optFns ...RequestOption) (*Response, error) {
	return c.Open(ctx, http.MethodHead, path, optFns...)
}

// Options makes an OPTIONS request. See [Client.Open] for argument details.
func (c *Client) Options(ctx context.Context, path string, optFns ...RequestOption) (*Response, error) {
	return c.Open(ctx, http.MethodOptions, path, optFns...)
}

// Trace makes a TRACE request. See [Client.Open] for argument details.
func (c *Client) Trace(ctx context.Context, path string, optFns ...RequestOption) (*Response, error) {
	return c.Open(ctx, http.MethodTrace, path, optFns...)
}

// Request builds a live HTTP connection without sending anything, giving
// the caller direct control over body streaming and event inspection.
func (c *Client) Request(ctx context.Context, method, path string, optFns ...RequestOption) (*HTTPConnection, error) {
	o, err := buildRequestOpts(optFns)
	if err != nil {
		return nil, fmt.Errorf("applying request option: %w", err)
	}
	if o.scheme == "" {
		o.scheme = "http"
	}

	headers, cleanPath, query, err := c.normalize(path, o)
	if err != nil {
		return nil, err
	}

	scope, err := c.buildScope(proto.ScopeHTTP, cleanPath, method, headers, query, o)
	if err != nil {
		return nil, err
	}

	return newHTTPConnection(ctx, c.app, scope), nil
}

// Websocket opens a simulated websocket connection. The returned connection
// has not performed its handshake; call Connect first.
func (c *Client) Websocket(ctx context.Context, path string, optFns ...RequestOption) (*WebsocketConnection, error) {
	o, err := buildRequestOpts(optFns)
	if err != nil {
		return nil, fmt.Errorf("applying request option: %w", err)
	}
	if o.scheme == "" {
		o.scheme = "ws"
	}

	headers, cleanPath, query, err := c.normalize(path, o)
	if err != nil {
		return nil, err
	}
	if o.subprotocol != "" {
		headers.Set("sec-websocket-protocol", o.subprotocol)
	}

	scope, err := c.buildScope(proto.ScopeWebsocket, cleanPath, http.MethodGet, headers, query, o)
	if err != nil {
		return nil, err
	}

	return newWebsocketConnection(ctx, c.app, scope), nil
}

// PreserveContexts runs fn in context-preservation mode: every exchange
// completed inside fn leaves its request context on the application's stack
// for inspection. Nested calls are a usage error. On return the mode is
// cleared and all preserved contexts are popped and released, whether or not
// fn succeeded.
func (c *Client) PreserveContexts(fn func() error) error {
	if c.preserve {
		return errs.Newf(errs.KindUsage, "cannot nest client invocations")
	}
	c.preserve = true

	defer func() {
		c.preserve = false

		stack := c.app.Contexts()
		for {
			top := stack.Top()
			if top == nil || !top.Preserved() {
				break
			}
			stack.Pop()
			top.Release()
		}
	}()

	return fn()
}

// makeRequest runs one exchange: normalize, materialize the body, inject
// jar cookies, build the scope, drive the connection, then harvest cookies
// and push promises from the result.
func (c *Client) makeRequest(ctx context.Context, method, path string, o *requestOpts) (*Response, error) {
	headers, cleanPath, query, err := c.normalize(path, o)
	if err != nil {
		return nil, err
	}

	body, bodyHeaders, err := materializeBody(o)
	if err != nil {
		return nil, err
	}
	headers.Update(bodyHeaders)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, cleanPath); err != nil {
			return nil, err
		}
	}

	if c.jar != nil {
		u, err := exchangeURL(o.scheme, headers.Get("host"), cleanPath)
		if err != nil {
			return nil, err
		}
		for _, line := range outgoingCookies(c.jar, u) {
			headers.Add("cookie", line)
		}
	}

	scope, err := c.buildScope(proto.ScopeHTTP, cleanPath, method, headers, query, o)
	if err != nil {
		return nil, err
	}

	connection := newHTTPConnection(ctx, c.app, scope)
	defer connection.Close()

	if err := connection.Send(ctx, body); err != nil {
		return nil, err
	}
	if err := connection.SendComplete(ctx); err != nil {
		return nil, err
	}

	response, err := connection.AsResponse(ctx)
	if err != nil {
		return nil, err
	}

	if c.jar != nil {
		u, err := exchangeURL(o.scheme, headers.Get("host"), cleanPath)
		if err != nil {
			return nil, err
		}
		extractCookies(c.jar, response.Headers, u)
	}

	c.pushPromises = append(c.pushPromises, connection.PushPromises()...)

	c.logger.Debug("exchange complete", "method", method, "path", cleanPath, "statusCode", response.StatusCode)

	return response, nil
}
