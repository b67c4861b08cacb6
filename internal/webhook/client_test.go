package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSendMessage_PostsJSONAndNormalizes(t *testing.T) {
	var gotBody messageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"output":"<p>Hi</p><b>there</b>"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	reply, err := c.SendMessage(context.Background(), "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotBody.Message != "hello" {
		t.Fatalf("request body message = %q", gotBody.Message)
	}
	// JSON extraction returns the field as-is; HTML inside a JSON field is
	// left to the display layer.
	if reply != "<p>Hi</p><b>there</b>" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestSendMessage_PlainTextNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<p>Hi</p><b>there</b>"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	reply, err := c.SendMessage(context.Background(), "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply != "Hi there" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestSendMessage_EmptyBodyIsSoft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("   \n"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	reply, err := c.SendMessage(context.Background(), "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply != EmptyReplyNotice {
		t.Fatalf("reply = %q", reply)
	}
}

func TestSendMessage_HTTPStatusErrors(t *testing.T) {
	for _, status := range []int{404, 503} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		c := New(srv.URL)
		_, err := c.SendMessage(context.Background(), "hello")
		srv.Close()
		var httpErr *HTTPError
		if !errors.As(err, &httpErr) {
			t.Fatalf("status %d: expected HTTPError, got %v", status, err)
		}
		if httpErr.Status != status {
			t.Fatalf("expected status %d, got %d", status, httpErr.Status)
		}
	}
}

func TestSendMessage_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := New(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := c.SendMessage(ctx, "hello")
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
}

func TestSendMessage_NoEndpoint(t *testing.T) {
	c := New("")
	if _, err := c.SendMessage(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error with missing endpoint")
	}
}
