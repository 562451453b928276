package proto

import "github.com/gustweb/gust/httpheader"

// Event is one message exchanged between an application and its driver.
type Event interface {
	Type() string
}

// RequestBody carries a chunk of the request body toward the application.
// More is true when further chunks follow.
type RequestBody struct {
	Body []byte
	More bool
}

func (RequestBody) Type() string { return "http.request" }

// Disconnect tells the application the client has gone away.
type Disconnect struct{}

func (Disconnect) Type() string { return "http.disconnect" }

// ResponseStart carries the response status and headers. Sent exactly once,
// before any ResponseBody.
type ResponseStart struct {
	Status  int
	Headers *httpheader.Headers
}

func (ResponseStart) Type() string { return "http.response.start" }

// ResponseBody carries a chunk of the response body. More is true when
// further chunks follow.
type ResponseBody struct {
	Body []byte
	More bool
}

func (ResponseBody) Type() string { return "http.response.body" }

// ResponsePush announces a server push. Only valid when the scope advertises
// ExtensionResponsePush.
type ResponsePush struct {
	Path    string
	Headers *httpheader.Headers
}

func (ResponsePush) Type() string { return "http.response.push" }

// WebsocketConnect opens a websocket handshake.
type WebsocketConnect struct{}

func (WebsocketConnect) Type() string { return "websocket.connect" }

// WebsocketAccept completes the handshake from the application side.
type WebsocketAccept struct {
	Subprotocol string
	Headers     *httpheader.Headers
}

func (WebsocketAccept) Type() string { return "websocket.accept" }

// WebsocketMessage carries one websocket message in either direction.
type WebsocketMessage struct {
	Data []byte
}

func (WebsocketMessage) Type() string { return "websocket.message" }

// WebsocketClose ends the websocket exchange.
type WebsocketClose struct {
	Code   int
	Reason string
}

func (WebsocketClose) Type() string { return "websocket.close" }
