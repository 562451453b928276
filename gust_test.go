package gust_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/gustweb/gust"
	"github.com/gustweb/gust/mux"
)

func TestNewClient(t *testing.T) {
	app := mux.New()
	app.Get("/ping", func(ctx context.Context, w *mux.ResponseWriter, r *mux.Request) error {
		_, err := w.Write([]byte("pong"))
		return err
	})

	c, err := gust.NewClient(app)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	resp, err := c.Get(context.Background(), "/ping")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := resp.Text(); got != "pong" {
		t.Fatalf("body = %q, want %q", got, "pong")
	}
}
