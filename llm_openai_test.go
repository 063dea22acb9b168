package anamnesis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIClientGenerateSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("wrong auth header: %s", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 0,
			"model":   "gpt-4o",
			"choices": []map[string]any{
				{
					"index": 0,
					"message": map[string]any{
						"role":    "assistant",
						"content": "hello from the mock",
					},
					"finish_reason": "stop",
				},
			},
		})
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("test-key", WithOpenAIBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Generate(context.Background(), "say hi", GenerateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if out != "hello from the mock" {
		t.Errorf("expected the mocked reply, got %q", out)
	}
}

func TestOpenAIClientEmptyKey(t *testing.T) {
	_, err := NewOpenAIClient("")
	if err == nil {
		t.Error("expected an error for an empty API key")
	}
}

func TestOpenAIClientGenerateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"server exploded"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("test-key", WithOpenAIBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Generate(context.Background(), "say hi", GenerateOptions{}); err == nil {
		t.Error("expected an error for HTTP 500")
	}
}

func TestOpenAIClientGenerateEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"model":   "gpt-4o",
			"choices": []map[string]any{},
		})
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("test-key", WithOpenAIBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Generate(context.Background(), "say hi", GenerateOptions{}); err == nil {
		t.Error("expected an error for an empty choices list")
	}
}
