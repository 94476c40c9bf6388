package brain

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/roby2358/oblique/internal/reliability"
)

func TestHTTPAdapterCompleteJSON(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"  a measured answer  "}`))
	}))
	defer srv.Close()

	a := NewHTTPAdapterWithOptions(srv.URL, "sekrit", 5*time.Second)
	resp, err := a.Complete(context.Background(), Request{RequestID: "r1", Prompt: "hello"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text != "a measured answer" {
		t.Fatalf("resp.Text = %q, want trimmed answer", resp.Text)
	}
	if gotAuth != "Bearer sekrit" {
		t.Fatalf("Authorization = %q, want bearer token", gotAuth)
	}
}

func TestHTTPAdapterCompletePlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("just words\n"))
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL)
	resp, err := a.Complete(context.Background(), Request{Prompt: "hello"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text != "just words" {
		t.Fatalf("resp.Text = %q, want %q", resp.Text, "just words")
	}
}

func TestHTTPAdapterCompleteAlternateKeys(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"completion":"from the completion key"}`))
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL)
	resp, err := a.Complete(context.Background(), Request{Prompt: "hello"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text != "from the completion key" {
		t.Fatalf("resp.Text = %q, want completion key value", resp.Text)
	}
}

func TestHTTPAdapterCompleteNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(srv.URL)
	_, err := a.Complete(context.Background(), Request{Prompt: "hello"})
	if err == nil {
		t.Fatalf("Complete() error = nil, want status error")
	}
	var se *reliability.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Complete() error = %v, want *reliability.StatusError", err)
	}
	if se.Upstream != "brain" || se.Code != http.StatusServiceUnavailable {
		t.Fatalf("StatusError = %+v, want brain/503", se)
	}
}

func TestHTTPAdapterCompleteContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server watches the connection and cancels
		// the request context when the client disconnects.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	a := NewHTTPAdapter(srv.URL)
	if _, err := a.Complete(ctx, Request{Prompt: "hello"}); err == nil {
		t.Fatalf("Complete() error = nil, want context error")
	}
}
