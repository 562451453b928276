package mux

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gustweb/gust/httpheader"
	"github.com/gustweb/gust/proto"
)

// ErrWebsocketClosed is returned by Websocket.Receive once the peer has
// closed or disconnected.
var ErrWebsocketClosed = errors.New("websocket closed")

// WebsocketHandler processes one websocket exchange. The handler must call
// Accept (or Reject) before sending messages.
type WebsocketHandler func(ctx context.Context, ws *Websocket) error

// Websocket is the handler-facing side of a websocket exchange.
type Websocket struct {
	Scope *proto.Scope

	recv     proto.Receiver
	send     proto.Sender
	accepted bool
	closed   bool
}

// Accept completes the handshake.
func (ws *Websocket) Accept(ctx context.Context, subprotocol string) error {
	if ws.accepted {
		return fmt.Errorf("websocket already accepted")
	}
	ws.accepted = true

	return ws.send(ctx, proto.WebsocketAccept{Subprotocol: subprotocol, Headers: httpheader.New()})
}

// Reject refuses the handshake with a plain HTTP response. Only valid
// before Accept, and only when the scope advertises the
// websocket-response extension.
func (ws *Websocket) Reject(ctx context.Context, status int, body []byte) error {
	if ws.accepted {
		return fmt.Errorf("websocket already accepted")
	}
	if !ws.Scope.Supports(proto.ExtensionWebsocketResponse) {
		return fmt.Errorf("reject: scope does not advertise %s", proto.ExtensionWebsocketResponse)
	}
	ws.closed = true

	headers := httpheader.New()
	headers.Set("content-length", strconv.Itoa(len(body)))
	if err := ws.send(ctx, proto.ResponseStart{Status: status, Headers: headers}); err != nil {
		return err
	}

	return ws.send(ctx, proto.ResponseBody{Body: body})
}

// Receive returns the next message from the client, or ErrWebsocketClosed.
func (ws *Websocket) Receive(ctx context.Context) ([]byte, error) {
	ev, err := ws.recv(ctx)
	if err != nil {
		return nil, err
	}
	switch ev := ev.(type) {
	case proto.WebsocketMessage:
		return ev.Data, nil
	case proto.WebsocketClose, proto.Disconnect:
		ws.closed = true
		return nil, ErrWebsocketClosed
	default:
		return nil, fmt.Errorf("unexpected event %q on websocket", ev.Type())
	}
}

// Send delivers a message to the client.
func (ws *Websocket) Send(ctx context.Context, data []byte) error {
	if !ws.accepted {
		return fmt.Errorf("websocket not accepted")
	}

	return ws.send(ctx, proto.WebsocketMessage{Data: data})
}

// Close ends the exchange with the given close code.
func (ws *Websocket) Close(ctx context.Context, code int, reason string) error {
	if ws.closed {
		return nil
	}
	ws.closed = true

	return ws.send(ctx, proto.WebsocketClose{Code: code, Reason: reason})
}

func (a *App) serveWebsocket(ctx context.Context, scope *proto.Scope, recv proto.Receiver, send proto.Sender) error {
	ev, err := recv(ctx)
	if err != nil {
		return err
	}
	if _, ok := ev.(proto.WebsocketConnect); !ok {
		return fmt.Errorf("expected websocket connect, got %q", ev.Type())
	}

	ws := &Websocket{Scope: scope, recv: recv, send: send}

	handler, ok := a.wsRoutes[scope.Path]
	if !ok {
		if scope.Supports(proto.ExtensionWebsocketResponse) {
			return ws.Reject(ctx, http.StatusNotFound, []byte("404 page not found"))
		}
		return ws.Close(ctx, 1000, "no route")
	}

	ctx, span := a.startSpan(ctx, scope)
	defer span.End()

	if err := handler(ctx, ws); err != nil && !errors.Is(err, ErrWebsocketClosed) {
		a.logger.Error("mux", "websocket", err)
	}

	return ws.Close(ctx, 1000, "")
}
