package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const defaultGeminiModel = "gemini-2.0-flash"
const defaultGeminiAPIBase = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient calls the generativelanguage REST endpoint with an inline
// base64 JPEG and the constructed prompt. Non-200 responses map onto the
// analysis error taxonomy; 429 is reported as quota exhaustion.
type GeminiClient struct {
	apiKey  string
	model   string
	apiBase string
	client  *http.Client
}

func NewGeminiClient(apiKey, model string) *GeminiClient {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiClient{
		apiKey:  apiKey,
		model:   model,
		apiBase: defaultGeminiAPIBase,
		client:  analysisHTTPClient,
	}
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (c *GeminiClient) Analyze(ctx context.Context, image []byte, req AnalyzeRequest) (*AnalysisResult, error) {
	payload := geminiRequest{
		Contents: []geminiContent{
			{
				Parts: []geminiPart{
					{Text: buildAnalysisPrompt(req)},
					{InlineData: &geminiInlineData{
						MimeType: "image/jpeg",
						Data:     base64.StdEncoding.EncodeToString(image),
					}},
				},
			},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0.4,
			TopK:            32,
			TopP:            1,
			MaxOutputTokens: 2048,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &AnalysisError{Kind: AnalysisParseError, Msg: fmt.Sprintf("marshaling request: %v", err)}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.apiBase, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, &AnalysisError{Kind: AnalysisNetworkError, Msg: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, &AnalysisError{Kind: AnalysisTimeout, Msg: err.Error()}
		}
		return nil, &AnalysisError{Kind: AnalysisNetworkError, Msg: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AnalysisError{Kind: AnalysisNetworkError, Msg: fmt.Sprintf("reading response: %v", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		log.Printf("gemini quota exceeded spot=%s body=%s", req.SpotName, truncateForLog(string(respBody), 500))
		return nil, &AnalysisError{Kind: AnalysisQuotaExceeded, Status: resp.StatusCode, Msg: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &AnalysisError{Kind: AnalysisHTTPError, Status: resp.StatusCode, Msg: truncateForLog(string(respBody), 500)}
	}

	var decoded geminiResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, &AnalysisError{Kind: AnalysisParseError, Msg: fmt.Sprintf("decoding response: %v", err)}
	}

	text := firstGeminiText(decoded)
	if text == "" {
		return nil, &AnalysisError{Kind: AnalysisParseError, Msg: "no text in response candidates"}
	}

	result, err := NormalizeAnalysisText(text)
	if err != nil {
		return nil, err
	}
	log.Printf("gemini analyze spot=%s status=%s to_sort=%d latency=%s",
		req.SpotName, result.Status, len(result.ToSort), time.Since(start).Round(time.Millisecond))
	return result, nil
}

func firstGeminiText(resp geminiResponse) string {
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				return part.Text
			}
		}
	}
	return ""
}

// ValidateKey does a cheap authenticated GET against the model resource.
// Called once at boot; failures are logged, never fatal.
func (c *GeminiClient) ValidateKey(ctx context.Context) bool {
	url := fmt.Sprintf("%s/models/%s", c.apiBase, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return false
	}
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := snapshotHTTPClient.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func truncateForLog(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
