package client_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/gustweb/gust/client"
	"github.com/gustweb/gust/errs"
	"github.com/gustweb/gust/mux"
	"github.com/gustweb/gust/session"
)

func TestClient_Get(t *testing.T) {
	c := newTestClient(t)

	resp, err := c.Get(context.Background(), "/greet?name=bob")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := resp.Text(); got != "Hello, bob" {
		t.Fatalf("body = %q, want %q", got, "Hello, bob")
	}
}

func TestClient_QueryOptionWinsOverPathQuery(t *testing.T) {
	c := newTestClient(t)

	resp, err := c.Get(context.Background(), "/greet?name=bob", client.WithQuery(url.Values{"name": {"kim"}}))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if got := resp.Text(); got != "Hello, kim" {
		t.Fatalf("body = %q, want %q", got, "Hello, kim")
	}
}

func TestClient_DefaultHeaders(t *testing.T) {
	c := newTestClient(t)

	resp, err := c.Get(context.Background(), "/headers-echo")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if got := resp.Text(); got != "localhost|gust-test-client" {
		t.Fatalf("body = %q, want %q", got, "localhost|gust-test-client")
	}
}

func TestClient_HeaderOverridesDefault(t *testing.T) {
	c := newTestClient(t)

	resp, err := c.Get(context.Background(), "/headers-echo", client.WithHeader("host", "example.com"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if got := resp.Text(); !strings.HasPrefix(got, "example.com|") {
		t.Fatalf("body = %q, want host example.com", got)
	}
}

func TestClient_NonASCIIPath(t *testing.T) {
	c := newTestClient(t)

	_, err := c.Get(context.Background(), "/café")
	if err == nil {
		t.Fatal("Get(non-ascii path) err = nil, want error")
	}
	if !errs.IsProtocol(err) {
		t.Fatalf("err = %v, want protocol kind", err)
	}
}

// /////////////////////////////////////////////////////////////////////////////////////////////

func TestClient_SetCookie(t *testing.T) {
	c := newTestClient(t)

	if err := c.SetCookie("localhost", "flavor", "oatmeal"); err != nil {
		t.Fatalf("SetCookie: %v", err)
	}

	resp, err := c.Get(context.Background(), "/cookie-echo")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if got := resp.Text(); got != "flavor=oatmeal" {
		t.Fatalf("cookies = %q, want %q", got, "flavor=oatmeal")
	}
}

func TestClient_DeleteCookie(t *testing.T) {
	c := newTestClient(t)

	if err := c.SetCookie("localhost", "flavor", "oatmeal"); err != nil {
		t.Fatalf("SetCookie: %v", err)
	}
	if err := c.DeleteCookie("localhost", "flavor"); err != nil {
		t.Fatalf("DeleteCookie: %v", err)
	}

	resp, err := c.Get(context.Background(), "/cookie-echo")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if got := resp.Text(); got != "" {
		t.Fatalf("cookies = %q, want none", got)
	}
}

func TestClient_ResponseCookiesPersist(t *testing.T) {
	c := newTestClient(t)

	if _, err := c.Get(context.Background(), "/set-cookie"); err != nil {
		t.Fatalf("Get(/set-cookie): %v", err)
	}

	resp, err := c.Get(context.Background(), "/cookie-echo")
	if err != nil {
		t.Fatalf("Get(/cookie-echo): %v", err)
	}

	if got := resp.Text(); got != "flavor=oatmeal" {
		t.Fatalf("cookies = %q, want %q", got, "flavor=oatmeal")
	}
}

func TestClient_WithoutCookies(t *testing.T) {
	c, err := client.Build(newTestApp(), client.WithoutCookies())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if err := c.SetCookie("localhost", "flavor", "oatmeal"); !errs.IsUsage(err) {
		t.Fatalf("SetCookie err = %v, want usage kind", err)
	}

	err = c.SessionTransaction(context.Background(), "/", func(*session.Session) error { return nil })
	if !errs.IsUsage(err) {
		t.Fatalf("SessionTransaction err = %v, want usage kind", err)
	}
}

// /////////////////////////////////////////////////////////////////////////////////////////////

func TestClient_Redirect302BecomesGet(t *testing.T) {
	c := newTestClient(t)

	resp, err := c.Post(context.Background(), "/submit", client.FollowRedirects())
	if err != nil {
		t.Fatalf("Post: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := resp.Text(); got != "GET landing" {
		t.Fatalf("body = %q, want %q", got, "GET landing")
	}
}

func TestClient_Redirect307KeepsMethod(t *testing.T) {
	c := newTestClient(t)

	resp, err := c.Post(context.Background(), "/redirect307", client.FollowRedirects())
	if err != nil {
		t.Fatalf("Post: %v", err)
	}

	if got := resp.Text(); got != "POST target" {
		t.Fatalf("body = %q, want %q", got, "POST target")
	}
}

func TestClient_RedirectsNotFollowedByDefault(t *testing.T) {
	c := newTestClient(t)

	resp, err := c.Post(context.Background(), "/submit")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if got := resp.Location(); got != "/landing" {
		t.Fatalf("location = %q, want %q", got, "/landing")
	}
}

func TestClient_RedirectHopUpdatesJarAndPushes(t *testing.T) {
	c := newTestClient(t)

	resp, err := c.Get(context.Background(), "/hop-start",
		client.WithHTTPVersion("2"),
		client.FollowRedirects(),
	)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	// The cookie set by the redirecting hop must reach the final request.
	if got := resp.Text(); got != "hop=one" {
		t.Fatalf("cookies on final hop = %q, want %q", got, "hop=one")
	}

	// The hop's push promise must survive until Open returns.
	pushes := c.PushPromises()
	if len(pushes) != 1 {
		t.Fatalf("push promises = %d, want 1", len(pushes))
	}
	if pushes[0].Path != "/hop.css" {
		t.Fatalf("push path = %q, want %q", pushes[0].Path, "/hop.css")
	}
}

func TestClient_RedirectLoopStops(t *testing.T) {
	c, err := client.Build(newTestApp(), client.WithMaxRedirects(3))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	_, err = c.Get(context.Background(), "/loop", client.FollowRedirects())
	if err == nil {
		t.Fatal("Get(/loop) err = nil, want error")
	}
	if !errs.IsRedirect(err) {
		t.Fatalf("err = %v, want redirect kind", err)
	}
}

// /////////////////////////////////////////////////////////////////////////////////////////////

func TestClient_BodyArgumentsConflict(t *testing.T) {
	c := newTestClient(t)

	if err := c.SetCookie("localhost", "seed", "kept"); err != nil {
		t.Fatalf("SetCookie: %v", err)
	}

	_, err := c.Post(context.Background(), "/echo-body",
		client.WithData([]byte("raw")),
		client.WithJSON(map[string]string{"a": "b"}),
	)
	if err == nil {
		t.Fatal("Post err = nil, want error")
	}
	if !errs.IsConfig(err) {
		t.Fatalf("err = %v, want config kind", err)
	}

	// The conflict is reported before any exchange, leaving the jar as it was.
	resp, err := c.Get(context.Background(), "/cookie-echo")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := resp.Text(); got != "seed=kept" {
		t.Fatalf("cookies = %q after rejected call, want %q", got, "seed=kept")
	}
}

func TestClient_JSONBody(t *testing.T) {
	c := newTestClient(t)

	resp, err := c.Post(context.Background(), "/echo-body", client.WithJSON(map[string]string{"a": "b"}))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}

	if got := resp.Text(); got != `application/json|{"a":"b"}` {
		t.Fatalf("body = %q, want %q", got, `application/json|{"a":"b"}`)
	}
}

func TestClient_FormBody(t *testing.T) {
	c := newTestClient(t)

	resp, err := c.Post(context.Background(), "/echo-body", client.WithForm(url.Values{"a": {"b"}}))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}

	if got := resp.Text(); got != "application/x-www-form-urlencoded|a=b" {
		t.Fatalf("body = %q, want %q", got, "application/x-www-form-urlencoded|a=b")
	}
}

func TestClient_MultipartBody(t *testing.T) {
	c := newTestClient(t)

	resp, err := c.Post(context.Background(), "/echo-body",
		client.WithForm(url.Values{"note": {"keep"}}),
		client.WithFile("upload", "notes.txt", "text/plain", []byte("file content")),
	)
	if err != nil {
		t.Fatalf("Post: %v", err)
	}

	contentType, body, ok := strings.Cut(resp.Text(), "|")
	if !ok {
		t.Fatalf("body = %q, want content-type|body", resp.Text())
	}
	if !strings.HasPrefix(contentType, "multipart/form-data; boundary=") {
		t.Fatalf("content-type = %q, want multipart/form-data", contentType)
	}
	for _, want := range []string{`filename="notes.txt"`, "text/plain", "file content", `name="note"`, "keep"} {
		if !strings.Contains(body, want) {
			t.Fatalf("multipart body missing %q:\n%s", want, body)
		}
	}
}

// /////////////////////////////////////////////////////////////////////////////////////////////

func TestClient_PushPromises(t *testing.T) {
	c := newTestClient(t)

	resp, err := c.Get(context.Background(), "/push", client.WithHTTPVersion("2"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	pushes := c.PushPromises()
	if len(pushes) != 1 {
		t.Fatalf("push promises = %d, want 1", len(pushes))
	}
	if pushes[0].Path != "/style.css" {
		t.Fatalf("push path = %q, want %q", pushes[0].Path, "/style.css")
	}

	if _, err := c.Get(context.Background(), "/greet"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := len(c.PushPromises()); got != 0 {
		t.Fatalf("push promises after plain request = %d, want 0", got)
	}
}

func TestClient_PushWithoutCapability(t *testing.T) {
	c := newTestClient(t)

	resp, err := c.Get(context.Background(), "/push")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
	if got := len(c.PushPromises()); got != 0 {
		t.Fatalf("push promises = %d, want 0", got)
	}
}

// /////////////////////////////////////////////////////////////////////////////////////////////

func TestClient_RequestStreaming(t *testing.T) {
	c := newTestClient(t)

	conn, err := c.Request(context.Background(), http.MethodPost, "/echo-body")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	if err := conn.Send(ctx, []byte("chunk one, ")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := conn.Send(ctx, []byte("chunk two")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := conn.SendComplete(ctx); err != nil {
		t.Fatalf("SendComplete: %v", err)
	}

	resp, err := conn.AsResponse(ctx)
	if err != nil {
		t.Fatalf("AsResponse: %v", err)
	}

	if got := resp.Text(); got != "|chunk one, chunk two" {
		t.Fatalf("body = %q, want %q", got, "|chunk one, chunk two")
	}
}

// /////////////////////////////////////////////////////////////////////////////////////////////

func TestClient_ThrottledRequests(t *testing.T) {
	c, err := client.Build(newTestApp(), client.WithThrottle(1000, 10))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for range 3 {
		if _, err := c.Get(context.Background(), "/greet?name=bob"); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
}

func TestBuild_NilApp(t *testing.T) {
	if _, err := client.Build(nil); err == nil {
		t.Fatal("Build(nil) err = nil, want error")
	}
}

// /////////////////////////////////////////////////////////////////////////////////////////////

func TestDecodeJSON(t *testing.T) {
	c := newTestClient(t)

	resp, err := c.Get(context.Background(), "/json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	var got struct {
		Name string `json:"name" validate:"required"`
	}
	if err := client.DecodeJSON(resp, &got); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if got.Name != "kim" {
		t.Fatalf("name = %q, want %q", got.Name, "kim")
	}
}

func TestDecodeJSON_ValidationFailure(t *testing.T) {
	c := newTestClient(t)

	resp, err := c.Get(context.Background(), "/json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	var got struct {
		Name  string `json:"name" validate:"required"`
		Email string `json:"email" validate:"required"`
	}
	err = client.DecodeJSON(resp, &got)
	if err == nil {
		t.Fatal("DecodeJSON err = nil, want validation error")
	}
	if !errs.IsFieldErrors(err) {
		t.Fatalf("err = %v, want field errors", err)
	}

	fields := errs.GetFieldErrors(err).Fields()
	if msg := fields["email"]; msg != "This field is required" {
		t.Fatalf("email error = %q, want %q", msg, "This field is required")
	}
}

func TestDecodeJSON_UnknownField(t *testing.T) {
	c := newTestClient(t)

	resp, err := c.Get(context.Background(), "/json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	var got struct {
		Other string `json:"other"`
	}
	if err := client.DecodeJSON(resp, &got); err == nil {
		t.Fatal("DecodeJSON err = nil, want unknown field error")
	}
}

// /////////////////////////////////////////////////////////////////////////////////////////////

// newTestApp builds the application fixture the client tests run against.
func newTestApp() *mux.App {
	app := mux.New(
		mux.WithSecretKey([]byte("test-secret")),
		mux.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	app.Get("/greet", func(ctx context.Context, w *mux.ResponseWriter, r *mux.Request) error {
		_, err := w.Write([]byte("Hello, " + r.Query().Get("name")))
		return err
	})

	app.Get("/headers-echo", func(ctx context.Context, w *mux.ResponseWriter, r *mux.Request) error {
		_, err := w.Write([]byte(r.Header("host") + "|" + r.Header("user-agent")))
		return err
	})

	app.Get("/cookie-echo", func(ctx context.Context, w *mux.ResponseWriter, r *mux.Request) error {
		_, err := w.Write([]byte(strings.Join(r.Scope.Headers.Values("cookie"), "; ")))
		return err
	})

	app.Get("/set-cookie", func(ctx context.Context, w *mux.ResponseWriter, r *mux.Request) error {
		w.Headers().Add("set-cookie", "flavor=oatmeal; Path=/")
		return nil
	})

	app.Post("/submit", func(ctx context.Context, w *mux.ResponseWriter, r *mux.Request) error {
		return w.Redirect("/landing", http.StatusFound)
	})
	app.Get("/landing", func(ctx context.Context, w *mux.ResponseWriter, r *mux.Request) error {
		_, err := w.Write([]byte("GET landing"))
		return err
	})
	app.Post("/redirect307", func(ctx context.Context, w *mux.ResponseWriter, r *mux.Request) error {
		return w.Redirect("/target", http.StatusTemporaryRedirect)
	})
	app.Post("/target", func(ctx context.Context, w *mux.ResponseWriter, r *mux.Request) error {
		_, err := w.Write([]byte("POST target"))
		return err
	})
	app.Get("/loop", func(ctx context.Context, w *mux.ResponseWriter, r *mux.Request) error {
		return w.Redirect("/loop", http.StatusFound)
	})
	app.Get("/hop-start", func(ctx context.Context, w *mux.ResponseWriter, r *mux.Request) error {
		if err := w.Push(ctx, "/hop.css", nil); err != nil {
			return err
		}
		w.Headers().Add("set-cookie", "hop=one; Path=/")
		return w.Redirect("/hop-end", http.StatusFound)
	})
	app.Get("/hop-end", func(ctx context.Context, w *mux.ResponseWriter, r *mux.Request) error {
		_, err := w.Write([]byte(strings.Join(r.Scope.Headers.Values("cookie"), "; ")))
		return err
	})

	app.Post("/echo-body", func(ctx context.Context, w *mux.ResponseWriter, r *mux.Request) error {
		if _, err := w.Write([]byte(r.Header("content-type") + "|")); err != nil {
			return err
		}
		_, err := w.Write(r.Body)
		return err
	})

	app.Get("/push", func(ctx context.Context, w *mux.ResponseWriter, r *mux.Request) error {
		if err := w.Push(ctx, "/style.css", nil); err != nil {
			return err
		}
		_, err := w.Write([]byte("pushed"))
		return err
	})

	app.Get("/json", func(ctx context.Context, w *mux.ResponseWriter, r *mux.Request) error {
		return w.JSON(http.StatusOK, map[string]string{"name": "kim"})
	})

	app.Post("/login", func(ctx context.Context, w *mux.ResponseWriter, r *mux.Request) error {
		r.Session().Set("user", "kim")
		_, err := w.Write([]byte("ok"))
		return err
	})
	app.Get("/whoami", func(ctx context.Context, w *mux.ResponseWriter, r *mux.Request) error {
		user, _ := r.Session().Get("user").(string)
		_, err := w.Write([]byte(user))
		return err
	})

	app.Get("/context", func(ctx context.Context, w *mux.ResponseWriter, r *mux.Request) error {
		_, err := w.Write([]byte("ok"))
		return err
	})

	return app
}

func newTestClient(t *testing.T) *client.Client {
	t.Helper()

	c, err := client.Build(newTestApp())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	return c
}
