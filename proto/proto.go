// Package proto defines the calling convention between an application and
// whatever drives it: a Scope describing one exchange, and the events
// exchanged over the receive/send pair while the exchange runs. The test
// client in package client speaks this protocol in place of a network
// transport.
package proto

import (
	"context"

	"github.com/gustweb/gust/httpheader"
)

// ScopeType discriminates HTTP from WebSocket exchanges.
type ScopeType string

const (
	ScopeHTTP      ScopeType = "http"
	ScopeWebsocket ScopeType = "websocket"
)

// Extension is a capability flag advertised on a Scope.
type Extension string

const (
	// ExtensionResponsePush allows the application to announce server
	// pushes. Advertised for HTTP/2 and HTTP/3 exchanges.
	ExtensionResponsePush Extension = "http.response.push"

	// ExtensionWebsocketResponse allows a websocket handler to reject the
	// handshake with a plain HTTP response.
	ExtensionWebsocketResponse Extension = "websocket.http.response"
)

// Scope describes one simulated exchange. It is built once, before the
// exchange starts, and must not be mutated afterward; the connection driving
// the exchange owns it for its lifetime.
type Scope struct {
	Type        ScopeType
	HTTPVersion string
	Method      string
	Scheme      string
	Path        string
	RawPath     []byte
	QueryString []byte
	RootPath    string
	Headers     *httpheader.Headers
	Extensions  map[Extension]struct{}

	// Preserve asks the application to keep the exchange's request context
	// alive after completion so the caller can inspect it. Copied from the
	// client's preservation mode at scope-build time.
	Preserve bool
}

// Supports reports whether the scope advertises the given extension.
func (s *Scope) Supports(ext Extension) bool {
	_, ok := s.Extensions[ext]
	return ok
}

// Receiver delivers the next event sent toward the application. It blocks
// until an event is available or ctx ends.
type Receiver func(ctx context.Context) (Event, error)

// Sender delivers an event from the application toward its driver.
type Sender func(ctx context.Context, ev Event) error

// Handler is the application entry point. Serve runs one exchange to
// completion, consuming request events via recv and emitting response events
// via send.
type Handler interface {
	Serve(ctx context.Context, scope *Scope, recv Receiver, send Sender) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, scope *Scope, recv Receiver, send Sender) error

func (f HandlerFunc) Serve(ctx context.Context, scope *Scope, recv Receiver, send Sender) error {
	return f(ctx, scope, recv, send)
}
