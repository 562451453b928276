package client

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/gustweb/gust/httpheader"
)

// Option is a functional option for configuring a [Client] via [Build].
type Option func(*options) error

type options struct {
	noCookies     bool
	logger        *slog.Logger
	tracer        trace.Tracer
	throttleRPS   int
	throttleBurst int
	maxRedirects  *int
}

// WithoutCookies disables the client's cookie jar. Cookie operations and
// session transactions become usage errors.
func WithoutCookies() Option {
	return func(o *options) error {
		o.noCookies = true
		return nil
	}
}

// WithLogger replaces the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithTracer sets the tracer used to span each Open call.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		o.tracer = tracer
		return nil
	}
}

// WithThrottle paces exchanges with a token bucket of the given requests
// per second and burst capacity.
func WithThrottle(rps, burst int) Option {
	return func(o *options) error {
		if rps <= 0 || burst <= 0 {
			return errors.New("rps and burst must be greater than zero")
		}
		o.throttleRPS = rps
		o.throttleBurst = burst
		return nil
	}
}

// WithMaxRedirects replaces the default redirect hop cap used when a call
// asks to follow redirects.
func WithMaxRedirects(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return errors.New("redirect cap must be greater than zero")
		}
		o.maxRedirects = &n
		return nil
	}
}

// /////////////////////////////////////////////////////////////////////////////////////////////

// RequestOption configures a single call to Open, Request, Websocket or
// SessionTransaction.
type RequestOption func(*requestOpts) error

// filePart is one file attached to a multipart request.
type filePart struct {
	field       string
	filename    string
	contentType string
	content     []byte
}

// requestOpts is the explicit per-call configuration record.
type requestOpts struct {
	method      string
	headers     *httpheader.Headers
	query       url.Values
	data        []byte
	form        url.Values
	files       []filePart
	json        any
	jsonSet     bool
	scheme      string
	rootPath    string
	httpVersion string
	follow      bool
	subprotocol string
}

func buildRequestOpts(optFns []RequestOption) (*requestOpts, error) {
	o := &requestOpts{
		headers:     httpheader.New(),
		httpVersion: "1.1",
	}
	for _, opt := range optFns {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// WithHeaders replaces the request headers wholesale.
func WithHeaders(h *httpheader.Headers) RequestOption {
	return func(o *requestOpts) error {
		if h == nil {
			return errors.New("headers must not be nil")
		}
		o.headers = h.Clone()
		return nil
	}
}

// WithHeader adds a single request header.
func WithHeader(name, value string) RequestOption {
	return func(o *requestOpts) error {
		o.headers.Add(name, value)
		return nil
	}
}

// WithQuery sets the query string, overriding any query in the path.
func WithQuery(q url.Values) RequestOption {
	return func(o *requestOpts) error {
		o.query = q
		return nil
	}
}

// WithData sets a raw request body.
func WithData(data []byte) RequestOption {
	return func(o *requestOpts) error {
		o.data = data
		return nil
	}
}

// WithForm sets form fields, encoded as application/x-www-form-urlencoded,
// or as multipart/form-data when combined with WithFile.
func WithForm(form url.Values) RequestOption {
	return func(o *requestOpts) error {
		o.form = form
		return nil
	}
}

// WithFile attaches a file, turning the request body into multipart/form-data.
func WithFile(field, filename, contentType string, content []byte) RequestOption {
	return func(o *requestOpts) error {
		o.files = append(o.files, filePart{
			field:       field,
			filename:    filename,
			contentType: contentType,
			content:     content,
		})
		return nil
	}
}

// WithJSON sets a JSON request body.
func WithJSON(val any) RequestOption {
	return func(o *requestOpts) error {
		o.json = val
		o.jsonSet = true
		return nil
	}
}

// WithScheme overrides the request scheme ("http" by default, "ws" for
// websocket connections).
func WithScheme(scheme string) RequestOption {
	return func(o *requestOpts) error {
		o.scheme = scheme
		return nil
	}
}

// WithRootPath sets the scope's root path.
func WithRootPath(rootPath string) RequestOption {
	return func(o *requestOpts) error {
		o.rootPath = rootPath
		return nil
	}
}

// WithHTTPVersion sets the protocol version ("1.1" by default). Versions
// "2" and "3" advertise the response-push capability.
func WithHTTPVersion(version string) RequestOption {
	return func(o *requestOpts) error {
		if version == "" {
			return errors.New("http version must not be empty")
		}
		o.httpVersion = version
		return nil
	}
}

// WithMethod overrides the synthetic request method of a session
// transaction. Open and the verb helpers ignore it.
func WithMethod(method string) RequestOption {
	return func(o *requestOpts) error {
		o.method = method
		return nil
	}
}

// WithSubprotocol requests a websocket subprotocol during the handshake.
func WithSubprotocol(subprotocol string) RequestOption {
	return func(o *requestOpts) error {
		o.subprotocol = subprotocol
		return nil
	}
}

// FollowRedirects makes Open chase 3xx responses until a non-3xx response
// or the client's hop cap is reached.
func FollowRedirects() RequestOption {
	return func(o *requestOpts) error {
		o.follow = true
		return nil
	}
}

// /////////////////////////////////////////////////////////////////////////////////////////////

// CookieOption configures SetCookie and DeleteCookie.
type CookieOption func(*cookieOpts)

type cookieOpts struct {
	path     string
	domain   string
	maxAge   *int
	expires  *time.Time
	secure   bool
	httpOnly bool
	sameSite http.SameSite
}

// WithCookiePath sets the cookie path. Defaults to "/".
func WithCookiePath(path string) CookieOption {
	return func(o *cookieOpts) {
		o.path = path
	}
}

// WithCookieDomain sets the cookie domain.
func WithCookieDomain(domain string) CookieOption {
	return func(o *cookieOpts) {
		o.domain = domain
	}
}

// WithCookieMaxAge sets the cookie max-age in seconds.
func WithCookieMaxAge(seconds int) CookieOption {
	return func(o *cookieOpts) {
		o.maxAge = &seconds
	}
}

// WithCookieExpires sets the cookie expiry time.
func WithCookieExpires(t time.Time) CookieOption {
	return func(o *cookieOpts) {
		o.expires = &t
	}
}

// WithCookieSecure marks the cookie secure.
func WithCookieSecure() CookieOption {
	return func(o *cookieOpts) {
		o.secure = true
	}
}

// WithCookieHTTPOnly marks the cookie http-only.
func WithCookieHTTPOnly() CookieOption {
	return func(o *cookieOpts) {
		o.httpOnly = true
	}
}

// WithCookieSameSite sets the cookie same-site mode.
func WithCookieSameSite(mode http.SameSite) CookieOption {
	return func(o *cookieOpts) {
		o.sameSite = mode
	}
}
