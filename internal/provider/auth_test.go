package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newTokenServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var issued atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil || r.Form.Get("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		n := issued.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok%d","token_type":"bearer","expires_in":3600}`, n)
	}))
	t.Cleanup(srv.Close)
	return srv, &issued
}

func TestClientCredentials_CachesToken(t *testing.T) {
	srv, issued := newTokenServer(t)
	a := NewClientCredentials(NameSpotify, srv.URL, "id", "secret", srv.Client())

	ctx := context.Background()
	for range 3 {
		tok, err := a.Token(ctx)
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if tok != "tok1" {
			t.Errorf("token = %q, want tok1", tok)
		}
	}
	if issued.Load() != 1 {
		t.Errorf("issued = %d, want 1", issued.Load())
	}
}

func TestClientCredentials_RefreshFetchesNewToken(t *testing.T) {
	srv, issued := newTokenServer(t)
	a := NewClientCredentials(NameSpotify, srv.URL, "id", "secret", srv.Client())

	ctx := context.Background()
	if _, err := a.Token(ctx); err != nil {
		t.Fatal(err)
	}
	if err := a.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	tok, _ := a.Token(ctx)
	if tok != "tok2" {
		t.Errorf("token = %q, want tok2", tok)
	}
	if issued.Load() != 2 {
		t.Errorf("issued = %d, want 2", issued.Load())
	}
}

func TestClientCredentials_NotConfigured(t *testing.T) {
	a := NewClientCredentials(NameSpotify, "http://127.0.0.1:1", "", "", nil)
	if a.Configured() {
		t.Error("Configured should be false")
	}
	_, err := a.Token(context.Background())
	var ar *ErrAuthRequired
	if !errors.As(err, &ar) {
		t.Errorf("err = %v, want ErrAuthRequired", err)
	}
}

func TestClientCredentials_BadSecret(t *testing.T) {
	srv, _ := newTokenServer(t)
	a := NewClientCredentials(NameSpotify, srv.URL, "id", "wrong", srv.Client())
	_, err := a.Token(context.Background())
	var pu *ErrProviderUnavailable
	if !errors.As(err, &pu) {
		t.Errorf("err = %v, want ErrProviderUnavailable", err)
	}
}
