package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAI {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL, Backoff: time.Millisecond})
	if err != nil {
		t.Fatalf("NewOpenAI() error = %v", err)
	}
	return client
}

func TestOpenAI_Moderate(t *testing.T) {
	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/moderations" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer")
		}
		w.Write([]byte(`{"results":[{"flagged":true,
			"categories":{"harassment":true,"violence":false,"hate":true},
			"category_scores":{"harassment":0.91,"violence":0.02,"hate":0.55}}]}`))
	})

	res, err := client.Moderate(context.Background(), "some text")
	if err != nil {
		t.Fatalf("Moderate() error = %v", err)
	}
	if !res.Flagged || res.Score != 0.91 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Categories) != 2 || res.Categories[0] != "harassment" || res.Categories[1] != "hate" {
		t.Fatalf("categories = %v", res.Categories)
	}
}

func TestOpenAI_CategorizeRetriesRateLimit(t *testing.T) {
	var calls int32
	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.ResponseFormat["type"] != "json_object" {
			t.Errorf("response_format = %v", req.ResponseFormat)
		}
		content, _ := json.Marshal(map[string]interface{}{
			"category": " Chocolate ",
			"tags":     []string{"Rich", "dark", "bitter", "cocoa", "smooth", "extra"},
		})
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{{"message": map[string]string{"role": "assistant", "content": string(content)}}},
		})
	})

	got, err := client.Categorize(context.Background(), "Dark Cocoa", "", []string{"chocolate", "other"})
	if err != nil {
		t.Fatalf("Categorize() error = %v", err)
	}
	if got.Category != "chocolate" || len(got.Tags) != 5 || got.Tags[0] != "rich" {
		t.Fatalf("unexpected categorization %+v", got)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestOpenAI_GivesUpAfterThreeAttempts(t *testing.T) {
	var calls int32
	client := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if _, err := client.Moderate(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestNewOpenAI_RequiresKey(t *testing.T) {
	if _, err := NewOpenAI(OpenAIConfig{}); err == nil {
		t.Fatal("expected error")
	}
}
