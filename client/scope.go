package client

import (
	"strings"

	"github.com/gustweb/gust/errs"
	"github.com/gustweb/gust/httpheader"
	"github.com/gustweb/gust/proto"
)

const defaultUserAgent = "gust-test-client"

// normalize produces the canonical header collection, the resolved path and
// the query-string bytes for one exchange. A query supplied via option wins
// over one embedded in the path. Host and user-agent defaults are filled in
// when the caller did not set them.
func (c *Client) normalize(rawPath string, o *requestOpts) (*httpheader.Headers, string, []byte, error) {
	headers := o.headers.Clone()
	if !headers.Has("host") {
		headers.Set("host", c.app.ServerName())
	}
	if !headers.Has("user-agent") {
		headers.Set("user-agent", defaultUserAgent)
	}

	path, pathQuery, _ := strings.Cut(rawPath, "?")
	if path == "" {
		path = "/"
	}

	query := []byte(pathQuery)
	if o.query != nil {
		query = []byte(o.query.Encode())
	}

	return headers, path, query, nil
}

// buildScope assembles the protocol request descriptor for one exchange.
// The context-preservation flag is copied from the client's current mode at
// build time, not at send time.
func (c *Client) buildScope(scopeType proto.ScopeType, path, method string, headers *httpheader.Headers, query []byte, o *requestOpts) (*proto.Scope, error) {
	rawPath, err := asciiBytes(path)
	if err != nil {
		return nil, err
	}

	extensions := make(map[proto.Extension]struct{})
	switch {
	case scopeType == proto.ScopeHTTP && (o.httpVersion == "2" || o.httpVersion == "3"):
		extensions[proto.ExtensionResponsePush] = struct{}{}
	case scopeType == proto.ScopeWebsocket:
		extensions[proto.ExtensionWebsocketResponse] = struct{}{}
	}

	return &proto.Scope{
		Type:        scopeType,
		HTTPVersion: o.httpVersion,
		Method:      method,
		Scheme:      o.scheme,
		Path:        path,
		RawPath:     rawPath,
		QueryString: query,
		RootPath:    o.rootPath,
		Headers:     headers,
		Extensions:  extensions,
		Preserve:    c.preserve,
	}, nil
}

// asciiBytes encodes path as ASCII, failing on any byte outside the ASCII
// range rather than silently truncating.
func asciiBytes(path string) ([]byte, error) {
	for i := 0; i < len(path); i++ {
		if path[i] > 0x7f {
			return nil, errs.Newf(errs.KindProtocol, "path[%s] is not ASCII encodable", path)
		}
	}
	return []byte(path), nil
}
