package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gustweb/gust/httpheader"
	"github.com/gustweb/gust/proto"
)

// ErrConnectionClosed is returned when reading from a websocket whose
// exchange has already finished.
var ErrConnectionClosed = errors.New("connection closed")

// ErrHandshakeRejected is returned by WebsocketConnection.Connect when the
// application refused the handshake with an HTTP response; AsResponse then
// returns that response.
var ErrHandshakeRejected = errors.New("websocket handshake rejected")

// PushPromise is a server-initiated resource announcement captured during
// an exchange.
type PushPromise struct {
	Path    string
	Headers *httpheader.Headers
}

// HTTPConnection drives one simulated HTTP exchange. The application runs
// in its own goroutine; the caller streams body chunks in and awaits the
// assembled response.
type HTTPConnection struct {
	scope  *proto.Scope
	toApp  chan proto.Event
	done   chan struct{}
	cancel context.CancelFunc

	mu       sync.Mutex
	events   []proto.Event
	push     []PushPromise
	serveErr error

	responseOnce sync.Once
	response     *Response
	responseErr  error
}

func newHTTPConnection(ctx context.Context, app App, scope *proto.Scope) *HTTPConnection {
	ctx, cancel := context.WithCancel(ctx)

	c := &HTTPConnection{
		scope:  scope,
		toApp:  make(chan proto.Event, 16),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer close(c.done)
		err := app.Serve(ctx, scope, c.receive, c.send)

		c.mu.Lock()
		c.serveErr = err
		c.mu.Unlock()
	}()

	return c
}

// receive feeds queued events to the application.
func (c *HTTPConnection) receive(ctx context.Context) (proto.Event, error) {
	select {
	case ev := <-c.toApp:
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// send collects events emitted by the application.
func (c *HTTPConnection) send(ctx context.Context, ev proto.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, ev)
	if push, ok := ev.(proto.ResponsePush); ok {
		c.push = append(c.push, PushPromise{Path: push.Path, Headers: push.Headers})
	}

	return nil
}

// Send streams a chunk of the request body into the application. A chunk
// sent after the application has already finished is discarded.
func (c *HTTPConnection) Send(ctx context.Context, body []byte) error {
	return c.deliver(ctx, proto.RequestBody{Body: body, More: true})
}

// SendComplete marks the end of the request body.
func (c *HTTPConnection) SendComplete(ctx context.Context) error {
	return c.deliver(ctx, proto.RequestBody{More: false})
}

func (c *HTTPConnection) deliver(ctx context.Context, ev proto.Event) error {
	select {
	case c.toApp <- ev:
		return nil
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AsResponse waits for the application to finish and assembles the response
// from the emitted events.
func (c *HTTPConnection) AsResponse(ctx context.Context) (*Response, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.responseOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.serveErr != nil {
			c.responseErr = fmt.Errorf("application error: %w", c.serveErr)
			return
		}
		c.response, c.responseErr = assembleResponse(c.events)
	})

	return c.response, c.responseErr
}

// Events returns a snapshot of the events emitted by the application so
// far, for inspecting partial responses on unmanaged connections.
func (c *HTTPConnection) Events() []proto.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	events := make([]proto.Event, len(c.events))
	copy(events, c.events)
	return events
}

// PushPromises returns the push promises reported during this exchange.
func (c *HTTPConnection) PushPromises() []PushPromise {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.push
}

// Close releases the application task. The connection's teardown always
// runs, so a cancelled exchange cannot leak a running application goroutine.
func (c *HTTPConnection) Close() {
	c.cancel()
}

// assembleResponse folds response events into a Response.
func assembleResponse(events []proto.Event) (*Response, error) {
	var response *Response
	for _, ev := range events {
		switch ev := ev.(type) {
		case proto.ResponseStart:
			if response != nil {
				return nil, fmt.Errorf("application started the response twice")
			}
			response = &Response{StatusCode: ev.Status, Headers: ev.Headers}
		case proto.ResponseBody:
			if response == nil {
				return nil, fmt.Errorf("application sent a body before starting the response")
			}
			response.Body = append(response.Body, ev.Body...)
		}
	}
	if response == nil {
		return nil, fmt.Errorf("application never started a response")
	}
	if response.Headers == nil {
		response.Headers = httpheader.New()
	}

	return response, nil
}
