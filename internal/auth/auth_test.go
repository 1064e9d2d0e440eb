package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// tokenServer serves OAuth2 client-credentials token responses, counting
// how many times the endpoint was hit.
func tokenServer(t *testing.T) (*httptest.Server, *int) {
	t.Helper()
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"bearer","expires_in":3600}`, hits)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestEnsureToken_CachesUntilForced(t *testing.T) {
	srv, hits := tokenServer(t)
	p := New(srv.URL, "operator-1", "s3cret")

	tok1, err := p.EnsureToken(context.Background(), false)
	if err != nil {
		t.Fatalf("EnsureToken: %v", err)
	}
	if tok1 != "tok-1" {
		t.Errorf("token = %q, want tok-1", tok1)
	}

	tok2, err := p.EnsureToken(context.Background(), false)
	if err != nil {
		t.Fatalf("EnsureToken: %v", err)
	}
	if tok2 != "tok-1" {
		t.Errorf("cached token = %q, want tok-1", tok2)
	}
	if *hits != 1 {
		t.Errorf("endpoint hits = %d, want 1", *hits)
	}
}

func TestEnsureToken_ForceRefreshes(t *testing.T) {
	srv, hits := tokenServer(t)
	p := New(srv.URL, "operator-1", "s3cret")

	if _, err := p.EnsureToken(context.Background(), false); err != nil {
		t.Fatalf("EnsureToken: %v", err)
	}
	tok, err := p.EnsureToken(context.Background(), true)
	if err != nil {
		t.Fatalf("EnsureToken force: %v", err)
	}
	if tok != "tok-2" {
		t.Errorf("forced token = %q, want tok-2", tok)
	}
	if *hits != 2 {
		t.Errorf("endpoint hits = %d, want 2", *hits)
	}
}

func TestEnsureToken_EndpointError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := New(srv.URL, "operator-1", "bad")
	if _, err := p.EnsureToken(context.Background(), false); err == nil {
		t.Fatal("expected error from failing token endpoint")
	}
}
