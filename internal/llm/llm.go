// Copyright 2025 The Keiji Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm wraps the Gemini SDK for single-shot structured
// extraction.
package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

var (
	// Model names supported by the Gemini API.

	GeminiPro   = "gemini-2.5-pro"
	GeminiFlash = "gemini-2.5-flash"

	// Roles used for demarcating speakers.

	ModelRole = "model"
	UserRole  = "user"

	// MIME types accepted for responses.

	JSONMIMEType = "application/json"
	TextMIMEType = "text/plain"
)

// NewGeminiClient connects to the Gemini API with an API key.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	return client, errors.Wrap(err, "creating genai client")
}

// WithSystemPrompt configures the provided config with a system prompt.
func WithSystemPrompt(config *genai.GenerateContentConfig, prompt ...*genai.Part) *genai.GenerateContentConfig {
	if config == nil {
		config = &genai.GenerateContentConfig{}
	}
	config.SystemInstruction = &genai.Content{
		Role:  ModelRole,
		Parts: prompt,
	}
	return config
}

// GenerateTextContent returns the text of a single generation turn.
func GenerateTextContent(ctx context.Context, client *genai.Client, model string, config *genai.GenerateContentConfig, prompt ...*genai.Part) (string, error) {
	if len(prompt) == 0 {
		return "", errors.New("prompt parts cannot be empty")
	}
	contents := []*genai.Content{{Role: UserRole, Parts: prompt}}
	resp, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", errors.Wrap(err, "generating content")
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("no candidates returned")
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason != genai.FinishReasonStop {
		return "", errors.Errorf("generation stopped: [%s] %s", candidate.FinishReason, candidate.FinishMessage)
	}
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		// Thought and tool-call parts carry no text.
		text.WriteString(part.Text)
	}
	if text.Len() == 0 {
		return "", errors.New("empty response content")
	}
	return text.String(), nil
}

// GenerateTypedContent extracts JSON data according to the schema set
// on the config. Markdown fences around the payload are tolerated.
func GenerateTypedContent(ctx context.Context, client *genai.Client, model string, config *genai.GenerateContentConfig, out any, prompt ...*genai.Part) error {
	if config == nil || config.ResponseSchema == nil {
		return errors.New("generate config must set a schema")
	}
	if config.ResponseMIMEType != JSONMIMEType {
		return errors.New("generate config must set a JSON MIME type")
	}
	text, err := GenerateTextContent(ctx, client, model, config, prompt...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(StripMarkdownFence(text)), out); err != nil {
		return errors.Wrap(err, "parsing JSON response")
	}
	return nil
}

// StripMarkdownFence returns the payload inside a markdown code fence,
// or the trimmed input when unfenced.
func StripMarkdownFence(s string) string {
	for _, fence := range []string{"```json", "```"} {
		if _, after, ok := strings.Cut(s, fence); ok {
			if inner, _, ok := strings.Cut(after, "```"); ok {
				return strings.TrimSpace(inner)
			}
		}
	}
	return strings.TrimSpace(s)
}
