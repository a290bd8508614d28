package main

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

const anthropicSystemPrompt = `You inspect photos of physical spaces and report whether they match the owner's definition of "ready". You answer with a single JSON object and nothing else.`

// AnthropicClient is the SDK-backed provider. The system prompt is cached
// across calls; the per-check prompt and image ride in one user message.
type AnthropicClient struct {
	client anthropic.Client
	model  string
}

func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (c *AnthropicClient) Analyze(ctx context.Context, image []byte, req AnalyzeRequest) (*AnalysisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, analysisHTTPTimeout)
	defer cancel()

	start := time.Now()
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 2048,
		System: []anthropic.TextBlockParam{
			{Text: anthropicSystemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64("image/jpeg", base64.StdEncoding.EncodeToString(image)),
				anthropic.NewTextBlock(buildAnalysisPrompt(req)),
			),
		},
	})
	if err != nil {
		return nil, classifyAnthropicError(err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			result, err := NormalizeAnalysisText(block.Text)
			if err != nil {
				return nil, err
			}
			log.Printf("anthropic analyze spot=%s status=%s to_sort=%d tokens_in=%d tokens_out=%d latency=%s",
				req.SpotName, result.Status, len(result.ToSort),
				message.Usage.InputTokens, message.Usage.OutputTokens,
				time.Since(start).Round(time.Millisecond))
			return result, nil
		}
	}
	return nil, &AnalysisError{Kind: AnalysisParseError, Msg: "no text content in response"}
}

func classifyAnthropicError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &AnalysisError{Kind: AnalysisTimeout, Msg: err.Error()}
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return &AnalysisError{Kind: AnalysisQuotaExceeded, Status: apiErr.StatusCode, Msg: err.Error()}
		}
		return &AnalysisError{Kind: AnalysisHTTPError, Status: apiErr.StatusCode, Msg: err.Error()}
	}
	return &AnalysisError{Kind: AnalysisNetworkError, Msg: err.Error()}
}
