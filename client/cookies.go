package client

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"golang.org/x/net/publicsuffix"

	"github.com/gustweb/gust/errs"
	"github.com/gustweb/gust/httpheader"
)

// newJar creates the client's cookie jar with real public-suffix domain
// matching, so simulated cookies behave like browser cookies.
func newJar() (http.CookieJar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

// exchangeURL derives the URL a simulated exchange would have hit, for
// cookie matching. Websocket schemes map onto their HTTP equivalents since
// the jar only understands http and https.
func exchangeURL(scheme, host, path string) (*url.URL, error) {
	if host == "" {
		return nil, errs.Newf(errs.KindUsage, "cookie handling requires a host header")
	}

	switch scheme {
	case "ws":
		scheme = "http"
	case "wss":
		scheme = "https"
	}

	u, err := url.Parse(fmt.Sprintf("%s://%s%s", scheme, host, path))
	if err != nil {
		return nil, fmt.Errorf("building exchange url: %w", err)
	}

	return u, nil
}

// outgoingCookies produces one "name=value" cookie header line per jar
// cookie matching the given URL, in jar iteration order.
func outgoingCookies(jar http.CookieJar, u *url.URL) []string {
	cookies := jar.Cookies(u)
	lines := make([]string, 0, len(cookies))
	for _, cookie := range cookies {
		lines = append(lines, fmt.Sprintf("%s=%s", cookie.Name, cookie.Value))
	}
	return lines
}

// extractCookies mutates the jar with every set-cookie entry in headers, as
// if they had been received from u.
func extractCookies(jar http.CookieJar, headers *httpheader.Headers, u *url.URL) {
	lines := headers.Values("set-cookie")
	if len(lines) == 0 {
		return
	}

	response := http.Response{Header: http.Header{"Set-Cookie": lines}}
	jar.SetCookies(u, response.Cookies())
}

// SetCookie stores a cookie in the jar by serializing a set-cookie header
// and feeding it through the same extraction path used for real responses,
// against a synthetic URL on serverName.
func (c *Client) SetCookie(serverName, name, value string, optFns ...CookieOption) error {
	if c.jar == nil {
		return errs.Newf(errs.KindUsage, "cookies are disabled on this client")
	}

	opts := cookieOpts{path: "/"}
	for _, opt := range optFns {
		opt(&opts)
	}

	cookie := http.Cookie{
		Name:     name,
		Value:    value,
		Path:     opts.path,
		Domain:   opts.domain,
		Secure:   opts.secure,
		HttpOnly: opts.httpOnly,
		SameSite: opts.sameSite,
	}
	if opts.maxAge != nil {
		cookie.MaxAge = *opts.maxAge
	}
	if opts.expires != nil {
		cookie.Expires = *opts.expires
	}

	line := cookie.String()
	if line == "" {
		return fmt.Errorf("cookie[%s] is not serializable", name)
	}

	u, err := url.Parse(fmt.Sprintf("http://%s%s", serverName, opts.path))
	if err != nil {
		return fmt.Errorf("building cookie url: %w", err)
	}

	headers := httpheader.New()
	headers.Add("set-cookie", line)
	extractCookies(c.jar, headers, u)

	return nil
}

// DeleteCookie removes a cookie by setting it to expire immediately.
func (c *Client) DeleteCookie(serverName, name string, optFns ...CookieOption) error {
	optFns = append(optFns, WithCookieMaxAge(-1))
	return c.SetCookie(serverName, name, "", optFns...)
}
