package serpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"aria/backend/internal/config"
)

func TestSearchReturnsOrganicResults(t *testing.T) {
	var receivedKey string
	var receivedQuery string
	var receivedNum string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedKey = r.URL.Query().Get("api_key")
		receivedQuery = r.URL.Query().Get("q")
		receivedNum = r.URL.Query().Get("num")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
		  "organic_results": [
		    {"title":"Rate Update","link":"https://example.com/rates","snippet":"Rates moved."},
		    {"title":"","link":"https://example.com/more","snippet":"More context."},
		    {"title":"No Link","link":"","snippet":"Dropped."}
		  ]
		}`))
	}))
	defer server.Close()

	client := NewClient(config.Config{
		SerpAPIKey:     "serp-key",
		SerpAPIBaseURL: server.URL,
	}, server.Client())

	results, err := client.Search(context.Background(), "latest interest rates", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if receivedKey != "serp-key" {
		t.Fatalf("expected api key param, got %q", receivedKey)
	}
	if receivedQuery != "latest interest rates" {
		t.Fatalf("unexpected query: %q", receivedQuery)
	}
	if receivedNum != "5" {
		t.Fatalf("unexpected num: %q", receivedNum)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Title != "Rate Update" || results[0].URL != "https://example.com/rates" {
		t.Fatalf("unexpected first result: %+v", results[0])
	}
	if results[1].Title != "https://example.com/more" {
		t.Fatalf("expected url fallback title, got %+v", results[1])
	}
}

func TestSearchCapsResultCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
		  "organic_results": [
		    {"title":"A","link":"https://example.com/a"},
		    {"title":"B","link":"https://example.com/b"},
		    {"title":"C","link":"https://example.com/c"}
		  ]
		}`))
	}))
	defer server.Close()

	client := NewClient(config.Config{
		SerpAPIKey:     "serp-key",
		SerpAPIBaseURL: server.URL,
	}, server.Client())

	results, err := client.Search(context.Background(), "anything", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected capped 2 results, got %d", len(results))
	}
}

func TestSearchReturnsErrMissingAPIKey(t *testing.T) {
	client := NewClient(config.Config{
		SerpAPIKey:     "",
		SerpAPIBaseURL: "https://serpapi.com",
	}, nil)

	_, err := client.Search(context.Background(), "test", 5)
	if err != ErrMissingAPIKey {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestSearchReturnsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	client := NewClient(config.Config{
		SerpAPIKey:     "serp-key",
		SerpAPIBaseURL: server.URL,
	}, server.Client())

	_, err := client.Search(context.Background(), "test", 5)
	if err == nil {
		t.Fatal("expected upstream error")
	}
	if !strings.Contains(err.Error(), "serpapi returned 429") {
		t.Fatalf("expected status in error, got %v", err)
	}
}
