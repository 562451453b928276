// Package gust exposes the test client builder.
package gust

import (
	"github.com/gustweb/gust/client"
)

// NewClient instantiates a new test *Client for the given application with
// the provided options. Cookies are enabled unless disabled via options.
func NewClient(app client.App, opts ...client.Option) (*client.Client, error) {
	return client.Build(app, opts...)
}
