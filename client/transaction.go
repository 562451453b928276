package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gustweb/gust/errs"
	"github.com/gustweb/gust/httpheader"
	"github.com/gustweb/gust/proto"
	"github.com/gustweb/gust/reqctx"
	"github.com/gustweb/gust/session"
)

// SessionTransaction opens the server-side session for a synthetic request
// and yields it to fn for inspection and mutation. While fn runs, whatever
// request context was current before the transaction is restored on top of
// the stack, so test code observes the same globals as before.
//
// On exit the transaction's context is dropped, the (possibly mutated)
// session is persisted through the session interface unless it is a null
// session, and the resulting cookies are extracted into the jar against the
// synthetic request's URL. The release steps run on every exit path.
func (c *Client) SessionTransaction(ctx context.Context, path string, fn func(*session.Session) error, optFns ...RequestOption) error {
	if c.jar == nil {
		return errs.Newf(errs.KindUsage, "session transactions only make sense with cookies enabled")
	}

	o, err := buildRequestOpts(optFns)
	if err != nil {
		return fmt.Errorf("applying request option: %w", err)
	}
	if o.scheme == "" {
		o.scheme = "http"
	}
	if o.method == "" {
		o.method = http.MethodGet
	}

	headers, cleanPath, query, err := c.normalize(path, o)
	if err != nil {
		return err
	}

	body, bodyHeaders, err := materializeBody(o)
	if err != nil {
		return err
	}
	headers.Update(bodyHeaders)

	u, err := exchangeURL(o.scheme, headers.Get("host"), cleanPath)
	if err != nil {
		return err
	}
	for _, line := range outgoingCookies(c.jar, u) {
		headers.Add("cookie", line)
	}

	scope, err := c.buildScope(proto.ScopeHTTP, cleanPath, o.method, headers, query, o)
	if err != nil {
		return err
	}

	sess, err := c.app.Sessions().Open(ctx, scope)
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	if sess == nil {
		return errs.Newf(errs.KindConfig, "error opening the session; check the secret key")
	}

	stack := c.app.Contexts()
	original := stack.Top()

	rc := reqctx.New(scope, body)
	rc.Session = sess
	stack.Push(rc)

	if err := runWithRestoredTop(stack, rc, original, func() error { return fn(sess) }); err != nil {
		return err
	}

	responseHeaders := httpheader.New()
	if !c.app.Sessions().IsNull(sess) {
		if err := c.app.Sessions().Save(ctx, sess, responseHeaders); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
	}
	extractCookies(c.jar, responseHeaders, u)

	return nil
}

// runWithRestoredTop runs fn with original restored above the transaction
// context, then unwinds both frames. The unwind runs even when fn fails or
// panics, so the stack depth before and after the transaction is equal.
func runWithRestoredTop(stack *reqctx.Stack, rc, original *reqctx.Context, fn func() error) error {
	defer func() {
		stack.Pop()
		rc.Release()
	}()

	if original != nil {
		stack.Push(original)
		defer stack.Pop()
	}

	return fn()
}
