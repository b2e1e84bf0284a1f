package categorize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const openAIChatURL = "https://api.openai.com/v1/chat/completions"

// LLMClassifier dispatches one batched chat-completion request expecting a
// JSON array of category strings back, in input order (§4.5.1 step 3).
type LLMClassifier struct {
	apiKey string
	model  string
	http   *http.Client
	log    zerolog.Logger
}

// NewLLMClassifier creates a new LLMClassifier. apiKey == "" means no LLM is
// configured; callers should skip invoking Classify entirely in that case.
func NewLLMClassifier(apiKey string, log zerolog.Logger) *LLMClassifier {
	return &LLMClassifier{
		apiKey: apiKey,
		model:  "gpt-4o-mini",
		http:   &http.Client{Timeout: 30 * time.Second},
		log:    log.With().Str("component", "llm_classifier").Logger(),
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Classify sends descriptions as one batched prompt and parses the model's
// JSON array response. Returns one category per input description, in
// order. Any failure (network, non-200, malformed JSON, length mismatch)
// returns an error; the caller falls every accumulated txn back to "other".
func (c *LLMClassifier) Classify(ctx context.Context, descriptions []string) ([]string, error) {
	if len(descriptions) == 0 {
		return nil, nil
	}

	prompt := buildPrompt(descriptions)
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a strict transaction categorizer. Respond with only a JSON array of strings."},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal llm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIChatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("llm returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode llm response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("llm response had no choices")
	}

	var categories []string
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &categories); err != nil {
		return nil, fmt.Errorf("llm response was not a JSON string array: %w", err)
	}
	if len(categories) != len(descriptions) {
		return nil, fmt.Errorf("llm returned %d categories for %d descriptions", len(categories), len(descriptions))
	}

	out := make([]string, len(categories))
	for i, cat := range categories {
		out[i] = coerceCategory(cat)
	}
	return out, nil
}

func buildPrompt(descriptions []string) string {
	payload, _ := json.Marshal(descriptions)
	return fmt.Sprintf(
		"Classify each transaction description into exactly one of these categories: %v.\n"+
			"Descriptions (JSON array, respond with a JSON array of the same length and order, one category per entry):\n%s",
		Vocabulary, string(payload),
	)
}
