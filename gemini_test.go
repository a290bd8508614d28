package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func geminiTextResponse(text string) string {
	resp := map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"parts": []any{map[string]any{"text": text}},
				},
			},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func newTestGemini(t *testing.T, handler http.HandlerFunc) *GeminiClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c := NewGeminiClient("test-key", "")
	c.apiBase = server.URL
	return c
}

func TestGeminiAnalyzeHappyPath(t *testing.T) {
	var gotPath, gotKey string
	var gotBody geminiRequest
	c := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(geminiTextResponse(
			"```json\n{\"status\": \"sorted\", \"to_sort\": [], \"looking_good\": [\"desk\"], \"notes\": {\"main\": \"Nice.\"}}\n```")))
	})

	result, err := c.Analyze(context.Background(), []byte("jpegbytes"), AnalyzeRequest{
		SpotName: "desk", Definition: "clear surface", VoicePrompt: "warm", ContextSummary: "First check - no history yet.",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Status != StatusSorted {
		t.Errorf("Status = %s", result.Status)
	}
	if gotPath != "/models/gemini-2.0-flash:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header = %q", gotKey)
	}
	if len(gotBody.Contents) != 1 || len(gotBody.Contents[0].Parts) != 2 {
		t.Fatalf("request shape = %+v", gotBody.Contents)
	}
	if gotBody.Contents[0].Parts[1].InlineData == nil ||
		gotBody.Contents[0].Parts[1].InlineData.MimeType != "image/jpeg" {
		t.Errorf("inline image part = %+v", gotBody.Contents[0].Parts[1])
	}
	cfg := gotBody.GenerationConfig
	if cfg.Temperature != 0.4 || cfg.TopK != 32 || cfg.TopP != 1 || cfg.MaxOutputTokens != 2048 {
		t.Errorf("generation config = %+v", cfg)
	}
	if !strings.Contains(gotBody.Contents[0].Parts[0].Text, `checking if "desk"`) {
		t.Error("prompt missing spot name")
	}
}

func TestGeminiQuotaExceeded(t *testing.T) {
	c := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "rate limit"}`, http.StatusTooManyRequests)
	})

	_, err := c.Analyze(context.Background(), []byte("x"), AnalyzeRequest{SpotName: "desk"})
	var analysisErr *AnalysisError
	if !errors.As(err, &analysisErr) {
		t.Fatalf("err = %v, want *AnalysisError", err)
	}
	if analysisErr.Kind != AnalysisQuotaExceeded || analysisErr.Status != http.StatusTooManyRequests {
		t.Errorf("got kind=%s status=%d, want quota_exceeded/429", analysisErr.Kind, analysisErr.Status)
	}
	if analysisErr.Error() != "analysis quota exceeded, try again later" {
		t.Errorf("user message = %q", analysisErr.Error())
	}
}

func TestGeminiHTTPError(t *testing.T) {
	c := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.Analyze(context.Background(), []byte("x"), AnalyzeRequest{SpotName: "desk"})
	var analysisErr *AnalysisError
	if !errors.As(err, &analysisErr) {
		t.Fatalf("err = %v, want *AnalysisError", err)
	}
	if analysisErr.Kind != AnalysisHTTPError || analysisErr.Status != http.StatusInternalServerError {
		t.Errorf("got kind=%s status=%d, want http_error/500", analysisErr.Kind, analysisErr.Status)
	}
}

func TestGeminiEmptyCandidates(t *testing.T) {
	c := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": []}`))
	})

	_, err := c.Analyze(context.Background(), []byte("x"), AnalyzeRequest{SpotName: "desk"})
	var analysisErr *AnalysisError
	if !errors.As(err, &analysisErr) || analysisErr.Kind != AnalysisParseError {
		t.Errorf("err = %v, want parse_error", err)
	}
}

func TestGeminiUnparseableModelText(t *testing.T) {
	c := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(geminiTextResponse("I see a desk with some items on it.")))
	})

	_, err := c.Analyze(context.Background(), []byte("x"), AnalyzeRequest{SpotName: "desk"})
	var analysisErr *AnalysisError
	if !errors.As(err, &analysisErr) || analysisErr.Kind != AnalysisParseError {
		t.Errorf("err = %v, want parse_error", err)
	}
}

func TestGeminiValidateKey(t *testing.T) {
	c := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" || r.Header.Get("x-goog-api-key") != "test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"name": "models/gemini-2.0-flash"}`))
	})
	if !c.ValidateKey(context.Background()) {
		t.Error("ValidateKey should pass with authenticated 200")
	}

	bad := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusForbidden)
	})
	if bad.ValidateKey(context.Background()) {
		t.Error("ValidateKey should fail on 403")
	}
}

func TestGeminiDefaultModel(t *testing.T) {
	c := NewGeminiClient("k", "")
	if c.model != "gemini-2.0-flash" {
		t.Errorf("default model = %q", c.model)
	}
	c = NewGeminiClient("k", "gemini-2.5-pro")
	if c.model != "gemini-2.5-pro" {
		t.Errorf("explicit model = %q", c.model)
	}
}

func TestTruncateForLog(t *testing.T) {
	if got := truncateForLog("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncateForLog("0123456789abc", 10); got != "0123456789..." {
		t.Errorf("got %q", got)
	}
}
