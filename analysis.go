package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Analyzer is the vision-model boundary. Implementations return a normalized
// result or an *AnalysisError; they never surface raw model text upward.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, req AnalyzeRequest) (*AnalysisResult, error)
}

// AnalyzeRequest carries everything the prompt is built from.
type AnalyzeRequest struct {
	SpotName       string
	Definition     string
	VoicePrompt    string
	ContextSummary string
}

// buildAnalysisPrompt renders the one prompt template both providers share.
func buildAnalysisPrompt(req AnalyzeRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are checking if %q matches its Ready State.\n\n", req.SpotName)

	b.WriteString("THE USER'S DEFINITION OF READY STATE:\n")
	b.WriteString(req.Definition)
	b.WriteString("\n\nHISTORY (from previous checks):\n")
	b.WriteString(req.ContextSummary)
	b.WriteString("\n\nYOUR VOICE (how to communicate):\n")
	b.WriteString(req.VoicePrompt)

	b.WriteString(`

TASK:
Look at the photo and compare it to the user's definition above.

1. List what's "To sort" - things that DON'T match the definition
2. List what's "Looking good" - things that DO match the definition
3. Write brief notes in your voice
4. If the history mentions patterns, you can reference them

RULES:
- Be SPECIFIC about what you see. "Coffee mug on left side of desk" not "items present"
- Reference the user's OWN WORDS from their definition
- If they said "no dishes" and you see dishes, call that out specifically
- Keep notes to 2-3 sentences MAX
- NEVER say "AI" or mention being an AI
- NEVER use generic phrases like "Let's get organized!"

RETURN THIS EXACT JSON FORMAT:
{
    "status": "sorted" or "needs_attention",
    "to_sort": [
        {"item": "specific item name", "location": "where it is"}
    ],
    "looking_good": ["item 1", "item 2"],
    "notes": {
        "main": "Your main observation in 1-2 sentences",
        "pattern": "Any pattern from history worth mentioning, or null",
        "encouragement": "Something encouraging if appropriate, or null"
    }
}

IMPORTANT:
- If EVERYTHING matches the definition, return status "sorted" with empty to_sort
- If ANYTHING doesn't match, return status "needs_attention"
- Do NOT include a "recurring" field - that's calculated separately
- Return ONLY valid JSON, no markdown, no extra text`)

	return b.String()
}

// rawAnalysisResponse mirrors the JSON shape the model is asked for, with
// every field loose enough to survive model creativity.
type rawAnalysisResponse struct {
	Status      json.RawMessage `json:"status"`
	ToSort      json.RawMessage `json:"to_sort"`
	LookingGood json.RawMessage `json:"looking_good"`
	Notes       json.RawMessage `json:"notes"`
}

// NormalizeAnalysisText turns the model's free-text reply into an
// AnalysisResult. The text is untrusted: the JSON object is extracted first
// (raw, then fence-stripped, then brace scan), then validated field by field.
// Only a completely unextractable object is an error; every field-level
// problem degrades toward needs_attention or gets dropped.
func NormalizeAnalysisText(text string) (*AnalysisResult, error) {
	obj, err := extractJSONObject(text)
	if err != nil {
		return nil, &AnalysisError{Kind: AnalysisParseError, Msg: err.Error()}
	}

	var raw rawAnalysisResponse
	if err := json.Unmarshal(obj, &raw); err != nil {
		return nil, &AnalysisError{Kind: AnalysisParseError, Msg: fmt.Sprintf("decoding response object: %v", err)}
	}

	result := &AnalysisResult{
		Status:      parseStatusField(raw.Status),
		ToSort:      parseToSortField(raw.ToSort),
		LookingGood: parseLookingGoodField(raw.LookingGood),
		Notes:       parseNotesField(raw.Notes),
	}
	return result, nil
}

// extractJSONObject pulls the first JSON object out of model text. Markdown
// code fences are stripped the way the model tends to emit them.
func extractJSONObject(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)
	if isJSONObject(trimmed) {
		return json.RawMessage(trimmed), nil
	}

	fenced := strings.TrimSpace(trimmed)
	fenced = strings.TrimPrefix(fenced, "```json")
	fenced = strings.TrimPrefix(fenced, "```")
	fenced = strings.TrimSuffix(fenced, "```")
	fenced = strings.TrimSpace(fenced)
	if isJSONObject(fenced) {
		return json.RawMessage(fenced), nil
	}

	// Last resort: first '{' to its matching '}'. Good enough for prose
	// wrapped around one object; strings containing braces are rare in
	// practice and the validity check below rejects bad cuts.
	start := strings.Index(trimmed, "{")
	if start >= 0 {
		depth := 0
		for i := start; i < len(trimmed); i++ {
			switch trimmed[i] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					candidate := trimmed[start : i+1]
					if isJSONObject(candidate) {
						return json.RawMessage(candidate), nil
					}
					i = len(trimmed)
				}
			}
		}
	}

	return nil, fmt.Errorf("no JSON object in model response (%d chars)", len(text))
}

func isJSONObject(s string) bool {
	if !strings.HasPrefix(s, "{") {
		return false
	}
	var probe map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &probe) == nil
}

// parseStatusField fails toward needs_attention: anything that is not the
// exact string "sorted" or "needs_attention" defaults.
func parseStatusField(raw json.RawMessage) CheckStatus {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return StatusNeedsAttention
	}
	if CheckStatus(s) == StatusSorted {
		return StatusSorted
	}
	return StatusNeedsAttention
}

// parseToSortField accepts strings and {item, location} objects. Empty item
// names are dropped. A model-supplied "recurring" field is discarded here by
// construction: only item and location are ever read.
func parseToSortField(raw json.RawMessage) []AnalysisItem {
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil
	}

	var out []AnalysisItem
	for _, el := range elements {
		var s string
		if err := json.Unmarshal(el, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, AnalysisItem{Item: s})
			}
			continue
		}

		var obj struct {
			Item     string `json:"item"`
			Location string `json:"location"`
		}
		if err := json.Unmarshal(el, &obj); err != nil {
			continue
		}
		item := strings.TrimSpace(obj.Item)
		if item == "" {
			continue
		}
		out = append(out, AnalysisItem{Item: item, Location: strings.TrimSpace(obj.Location)})
	}
	return out
}

// parseLookingGoodField accepts strings, or objects unwrapped via "item".
func parseLookingGoodField(raw json.RawMessage) []string {
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil
	}

	var out []string
	for _, el := range elements {
		var s string
		if err := json.Unmarshal(el, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}

		var obj struct {
			Item string `json:"item"`
		}
		if err := json.Unmarshal(el, &obj); err != nil {
			continue
		}
		if item := strings.TrimSpace(obj.Item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseNotesField(raw json.RawMessage) Notes {
	var obj struct {
		Main          *string `json:"main"`
		Pattern       *string `json:"pattern"`
		Encouragement *string `json:"encouragement"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Notes{}
	}
	deref := func(p *string) string {
		if p == nil {
			return ""
		}
		return strings.TrimSpace(*p)
	}
	return Notes{
		Main:          deref(obj.Main),
		Pattern:       deref(obj.Pattern),
		Encouragement: deref(obj.Encouragement),
	}
}
