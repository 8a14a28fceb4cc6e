package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestEmbedder(t *testing.T, handler http.HandlerFunc) *GenAIEmbedder {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	embedder, err := NewGenAIEmbedder(context.Background(), GenAIConfig{
		APIKey:     "gemini-test",
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("NewGenAIEmbedder() error = %v", err)
	}
	return embedder
}

func TestGenAIEmbedder_Embed(t *testing.T) {
	embedder := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-embedding-001:batchEmbedContents") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "gemini-test" {
			t.Errorf("missing api key header")
		}
		var body struct {
			Requests []struct {
				TaskType string `json:"taskType"`
				Content  struct {
					Parts []struct {
						Text string `json:"text"`
					} `json:"parts"`
				} `json:"content"`
			} `json:"requests"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if len(body.Requests) != 2 {
			t.Errorf("requests = %d", len(body.Requests))
		} else {
			if body.Requests[0].TaskType != "SEMANTIC_SIMILARITY" {
				t.Errorf("task type = %q", body.Requests[0].TaskType)
			}
			if got := body.Requests[1].Content.Parts[0].Text; got != "mint chip" {
				t.Errorf("second text = %q", got)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"embeddings":[{"values":[0.1,0.2,0.3]},{"values":[0.3,0.2,0.1]}]}`))
	})

	vectors, err := embedder.Embed(context.Background(), []string{"mint chocolate chip", "mint chip"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 2 || len(vectors[0]) != 3 || vectors[1][0] != float32(0.3) {
		t.Fatalf("vectors = %v", vectors)
	}
}

func TestGenAIEmbedder_CountMismatch(t *testing.T) {
	embedder := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"embeddings":[{"values":[0.1]}]}`))
	})
	if _, err := embedder.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected an error for a short response")
	}
}

func TestGenAIEmbedder_EmptyInputAndConfig(t *testing.T) {
	embedder := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty input")
	})
	vectors, err := embedder.Embed(context.Background(), nil)
	if err != nil || vectors != nil {
		t.Fatalf("Embed(nil) = %v, %v", vectors, err)
	}
	if _, err := NewGenAIEmbedder(context.Background(), GenAIConfig{}); err == nil {
		t.Fatal("expected an error without an api key")
	}
}
