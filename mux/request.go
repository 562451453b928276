package mux

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gustweb/gust/httpheader"
	"github.com/gustweb/gust/proto"
	"github.com/gustweb/gust/session"
)

// Request is the handler-facing view of one exchange.
type Request struct {
	Scope *proto.Scope
	Body  []byte

	session *session.Session
	query   url.Values
}

// Method returns the request method.
func (r *Request) Method() string {
	return r.Scope.Method
}

// Path returns the request path.
func (r *Request) Path() string {
	return r.Scope.Path
}

// Header returns the first value of the named request header.
func (r *Request) Header(name string) string {
	return r.Scope.Headers.Get(name)
}

// Session returns the session opened for this request.
func (r *Request) Session() *session.Session {
	return r.session
}

// Query parses and returns the query string. The parse result is cached.
func (r *Request) Query() url.Values {
	if r.query == nil {
		q, err := url.ParseQuery(string(r.Scope.QueryString))
		if err != nil {
			q = url.Values{}
		}
		r.query = q
	}
	return r.query
}

// Form parses the body as application/x-www-form-urlencoded.
func (r *Request) Form() (url.Values, error) {
	ct := r.Scope.Headers.Get("content-type")
	if !strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		return nil, fmt.Errorf("form: content-type[%s] is not form-urlencoded", ct)
	}

	form, err := url.ParseQuery(string(r.Body))
	if err != nil {
		return nil, fmt.Errorf("form: %w", err)
	}

	return form, nil
}

// DecodeJSON reads the request body as a JSON document into val.
func (r *Request) DecodeJSON(val any) error {
	decoder := json.NewDecoder(bytes.NewReader(r.Body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(val); err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	return nil
}

// ResponseWriter accumulates the response for one exchange. The status and
// body are emitted as protocol events once the handler returns.
type ResponseWriter struct {
	scope   *proto.Scope
	send    proto.Sender
	status  int
	headers *httpheader.Headers
	buf     bytes.Buffer
	wrote   bool
}

func newResponseWriter(scope *proto.Scope, send proto.Sender) *ResponseWriter {
	return &ResponseWriter{
		scope:   scope,
		send:    send,
		status:  http.StatusOK,
		headers: httpheader.New(),
	}
}

// Headers returns the response header collection.
func (w *ResponseWriter) Headers() *httpheader.Headers {
	return w.headers
}

// Status returns the status code that will be emitted.
func (w *ResponseWriter) Status() int {
	return w.status
}

// WriteHeader sets the response status code.
func (w *ResponseWriter) WriteHeader(status int) {
	w.status = status
	w.wrote = true
}

// Write appends p to the response body.
func (w *ResponseWriter) Write(p []byte) (int, error) {
	w.wrote = true
	return w.buf.Write(p)
}

// JSON writes a JSON response, setting the status code and content type.
func (w *ResponseWriter) JSON(status int, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	w.headers.Set("content-type", "application/json")
	w.WriteHeader(status)

	if _, err = w.Write(jsonData); err != nil {
		return err
	}

	return nil
}

// Redirect issues a redirect to the given URL. The status code must be in
// the 3xx range or an error is returned.
func (w *ResponseWriter) Redirect(location string, code int) error {
	if code < 300 || code > 399 {
		return fmt.Errorf("invalid redirect code: %d", code)
	}

	w.headers.Set("location", location)
	w.WriteHeader(code)

	return nil
}

// Push announces a server push for the given path. It is an error unless
// the scope advertises the response-push extension.
func (w *ResponseWriter) Push(ctx context.Context, path string, headers *httpheader.Headers) error {
	if !w.scope.Supports(proto.ExtensionResponsePush) {
		return fmt.Errorf("push: scope does not advertise %s", proto.ExtensionResponsePush)
	}
	if headers == nil {
		headers = httpheader.New()
	}

	return w.send(ctx, proto.ResponsePush{Path: path, Headers: headers})
}
