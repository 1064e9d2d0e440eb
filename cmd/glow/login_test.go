package main

import (
	"bufio"
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func tokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/token" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLogin_WritesVerifiedCredentials(t *testing.T) {
	srv := tokenServer(t)
	configPath := filepath.Join(t.TempDir(), "glow.yaml")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(srv.URL + "\nrange-client\ns3cret\n"))
	cmd.SetArgs([]string{"login", "-c", configPath})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.String(), "Credentials saved") {
		t.Errorf("output = %q", out.String())
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	for _, want := range []string{"range-client", "s3cret", srv.URL} {
		if !strings.Contains(string(data), want) {
			t.Errorf("config missing %q:\n%s", want, data)
		}
	}
}

func TestLogin_RejectsBadCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)
	configPath := filepath.Join(t.TempDir(), "glow.yaml")

	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetIn(strings.NewReader(srv.URL + "\nrange-client\nwrong\n"))
	cmd.SetArgs([]string{"login", "-c", configPath})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for rejected credentials")
	}
	if _, err := os.Stat(configPath); !os.IsNotExist(err) {
		t.Error("config written despite failed verification")
	}
}

func TestPromptLine(t *testing.T) {
	var out bytes.Buffer

	got, err := promptLine(&out, bufio.NewReader(strings.NewReader("value\n")), "Client ID", "")
	if err != nil || got != "value" {
		t.Errorf("promptLine = %q, %v", got, err)
	}

	// Empty input keeps the current value.
	got, err = promptLine(&out, bufio.NewReader(strings.NewReader("\n")), "Client ID", "existing")
	if err != nil || got != "existing" {
		t.Errorf("promptLine with default = %q, %v", got, err)
	}

	// Empty input without a current value is an error.
	if _, err := promptLine(&out, bufio.NewReader(strings.NewReader("\n")), "Client ID", ""); err == nil {
		t.Error("expected error for empty required value")
	}
}
