package seerr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientPostComment(t *testing.T) {
	var capturedPath, capturedKey, capturedContentType string
	var capturedBody map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedPath = r.URL.Path
		capturedKey = r.Header.Get("X-Api-Key")
		capturedContentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&capturedBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL + "/", APIKey: "key_123", HTTPClient: server.Client()})
	if err := client.PostComment(context.Background(), 42, "Subtitles fixed"); err != nil {
		t.Fatalf("post comment failed: %v", err)
	}
	if capturedPath != "/api/v1/issue/42/comment" {
		t.Fatalf("unexpected path %q", capturedPath)
	}
	if capturedKey != "key_123" {
		t.Fatalf("unexpected api key %q", capturedKey)
	}
	if capturedContentType != "application/json" {
		t.Fatalf("unexpected content type %q", capturedContentType)
	}
	if capturedBody["message"] != "Subtitles fixed" {
		t.Fatalf("unexpected body %v", capturedBody)
	}
}

func TestClientMarkResolved(t *testing.T) {
	var capturedPath, capturedMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedPath = r.URL.Path
		capturedMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL, APIKey: "key_123", HTTPClient: server.Client()})
	if err := client.MarkResolved(context.Background(), 42); err != nil {
		t.Fatalf("mark resolved failed: %v", err)
	}
	if capturedMethod != http.MethodPost || capturedPath != "/api/v1/issue/42/resolved" {
		t.Fatalf("unexpected request %s %s", capturedMethod, capturedPath)
	}
}

func TestClientSurfacesRemoteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"invalid api key"}`))
	}))
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL, APIKey: "bad", HTTPClient: server.Client()})
	err := client.MarkResolved(context.Background(), 7)
	if err == nil {
		t.Fatalf("expected error on 403")
	}
	if !strings.Contains(err.Error(), "status=403") || !strings.Contains(err.Error(), "invalid api key") {
		t.Fatalf("error lacks context: %v", err)
	}
}

func TestClientRequiresConfiguration(t *testing.T) {
	client := NewClient(ClientOptions{})
	if err := client.MarkResolved(context.Background(), 1); err == nil {
		t.Fatalf("expected error for unconfigured client")
	}
}
