package client

import (
	"github.com/gustweb/gust/httpheader"
)

// Response is the assembled result of one simulated exchange. It is not
// retained by the client; each call produces a fresh value.
type Response struct {
	StatusCode int
	Headers    *httpheader.Headers
	Body       []byte
}

// Location returns the location header, used when following redirects.
func (r *Response) Location() string {
	return r.Headers.Get("location")
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}
