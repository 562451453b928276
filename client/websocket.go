package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/gustweb/gust/proto"
)

// WebsocketConnection drives one simulated websocket exchange.
type WebsocketConnection struct {
	scope   *proto.Scope
	toApp   chan proto.Event
	fromApp chan proto.Event
	done    chan struct{}
	cancel  context.CancelFunc

	mu         sync.Mutex
	respEvents []proto.Event
	serveErr   error

	accepted    bool
	subprotocol string
}

func newWebsocketConnection(ctx context.Context, app App, scope *proto.Scope) *WebsocketConnection {
	ctx, cancel := context.WithCancel(ctx)

	c := &WebsocketConnection{
		scope:   scope,
		toApp:   make(chan proto.Event, 16),
		fromApp: make(chan proto.Event, 64),
		done:    make(chan struct{}),
		cancel:  cancel,
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

func (c *WebsocketConnection) receive(ctx context.Context) (proto.Event, error) {
	select {
	case ev := <-c.toApp:
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *WebsocketConnection) send(ctx context.Context, ev proto.Event) error {
	switch ev.(type) {
	case proto.ResponseStart, proto.ResponseBody:
		// Handshake rejection response, assembled later by AsResponse.
		c.mu.Lock()
		c.respEvents = append(c.respEvents, ev)
		c.mu.Unlock()
		return nil
	}

	select {
	case c.fromApp <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect performs the websocket handshake. It returns
// ErrHandshakeRejected when the application answered with an HTTP response
// instead of accepting; AsResponse then exposes that response.
func (c *WebsocketConnection) Connect(ctx context.Context) error {
	if err := c.deliver(ctx, proto.WebsocketConnect{}); err != nil {
		return err
	}

	ev, err := c.next(ctx)
	if err != nil {
		return err
	}
	if ev == nil {
		if err := c.appErr(); err != nil {
			return err
		}
		return ErrHandshakeRejected
	}

	accept, ok := ev.(proto.WebsocketAccept)
	if !ok {
		return fmt.Errorf("expected websocket accept, got %q", ev.Type())
	}
	c.accepted = true
	c.subprotocol = accept.Subprotocol

	return nil
}

// Subprotocol returns the subprotocol chosen by the application during the
// handshake.
func (c *WebsocketConnection) Subprotocol() string {
	return c.subprotocol
}

// Send delivers a message to the application.
func (c *WebsocketConnection) Send(ctx context.Context, data []byte) error {
	if !c.accepted {
		return fmt.Errorf("websocket not connected")
	}
	return c.deliver(ctx, proto.WebsocketMessage{Data: data})
}

// Receive returns the next message from the application, or
// ErrConnectionClosed once the exchange has finished.
func (c *WebsocketConnection) Receive(ctx context.Context) ([]byte, error) {
	if !c.accepted {
		return nil, fmt.Errorf("websocket not connected")
	}

	ev, err := c.next(ctx)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		if err := c.appErr(); err != nil {
			return nil, err
		}
		return nil, ErrConnectionClosed
	}

	switch ev := ev.(type) {
	case proto.WebsocketMessage:
		return ev.Data, nil
	case proto.WebsocketClose:
		return nil, ErrConnectionClosed
	default:
		return nil, fmt.Errorf("unexpected event %q on websocket", ev.Type())
	}
}

// next returns the next application event, preferring queued events over
// exchange completion so nothing already sent is lost. A nil event means
// the exchange finished with nothing left to read.
func (c *WebsocketConnection) next(ctx context.Context) (proto.Event, error) {
	select {
	case ev := <-c.fromApp:
		return ev, nil
	default:
	}

	select {
	case ev := <-c.fromApp:
		return ev, nil
	case <-c.done:
		select {
		case ev := <-c.fromApp:
			return ev, nil
		default:
			return nil, nil
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CloseWith tells the application the client is closing the exchange.
func (c *WebsocketConnection) CloseWith(ctx context.Context, code int, reason string) error {
	return c.deliver(ctx, proto.WebsocketClose{Code: code, Reason: reason})
}

// Close releases the application task.
func (c *WebsocketConnection) Close() {
	c.cancel()
}

// AsResponse assembles the HTTP response the application rejected the
// handshake with.
func (c *WebsocketConnection) AsResponse(ctx context.Context) (*Response, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := c.appErr(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return assembleResponse(c.respEvents)
}

func (c *WebsocketConnection) deliver(ctx context.Context, ev proto.Event) error {
	select {
	case c.toApp <- ev:
		return nil
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *WebsocketConnection) appErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.serveErr != nil {
		return fmt.Errorf("application error: %w", c.serveErr)
	}
	return nil
}
