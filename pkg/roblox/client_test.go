package roblox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newRobloxServer(t *testing.T, knownUser string) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/usernames/users", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("users method = %s", r.Method)
		}
		var req usernamesRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Usernames) == 1 && req.Usernames[0] == knownUser {
			w.Write([]byte(`{"data":[{"id":1234,"name":"` + knownUser + `"}]}`))
			return
		}
		w.Write([]byte(`{"data":[]}`))
	})
	mux.HandleFunc("/v1/users/avatar-headshot", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("userIds"); got != "1234" {
			t.Errorf("userIds = %q", got)
		}
		w.Write([]byte(`{"data":[{"targetId":1234,"state":"Completed","imageUrl":"` + srv.URL + `/img/1234.png"}]}`))
	})
	mux.HandleFunc("/img/1234.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("PNGDATA"))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHeadshot(t *testing.T) {
	t.Parallel()
	srv := newRobloxServer(t, "builderman")
	c := New(100).WithBaseURLs(srv.URL, srv.URL)

	data, err := c.Headshot(context.Background(), "builderman")
	if err != nil {
		t.Fatalf("Headshot error: %v", err)
	}
	if string(data) != "PNGDATA" {
		t.Fatalf("Headshot = %q", data)
	}
}

func TestHeadshotNotFound(t *testing.T) {
	t.Parallel()
	srv := newRobloxServer(t, "builderman")
	c := New(100).WithBaseURLs(srv.URL, srv.URL)

	if _, err := c.Headshot(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestHeadshotServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)
	c := New(100).WithBaseURLs(srv.URL, srv.URL)

	_, err := c.Headshot(context.Background(), "builderman")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want a transport error", err)
	}
}

func TestHeadshotCanceledContext(t *testing.T) {
	t.Parallel()
	c := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Headshot(ctx, "builderman"); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
