// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package summary generates a short summary of news headlines using the
// Gemini API.
package summary

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultModel = "gemini-1.5-flash"

// Summarizer summarizes news headlines.
type Summarizer struct {
	// APIKey is the Gemini API key used for authentication.
	APIKey string
	// Model is the Gemini model used for summarization. Defaults to
	// gemini-1.5-flash.
	Model string

	clientOpts []option.ClientOption // for tests
}

// Summarize produces a plain-text summary of the given headlines.
func (s *Summarizer) Summarize(ctx context.Context, headlines []string) (string, error) {
	if s.APIKey == "" {
		return "", errors.New("summary: API key is not set")
	}
	if len(headlines) == 0 {
		return "", errors.New("summary: nothing to summarize")
	}

	opts := append([]option.ClientOption{option.WithAPIKey(s.APIKey)}, s.clientOpts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", err
	}
	defer client.Close()

	model := client.GenerativeModel(cmp.Or(s.Model, defaultModel))
	resp, err := model.GenerateContent(ctx, genai.Text(prompt(headlines)))
	if err != nil {
		return "", err
	}

	return extractText(resp)
}

func prompt(headlines []string) string {
	var sb strings.Builder
	sb.WriteString("Summarize today's news headlines in two or three short sentences. Respond with plain text, without Markdown formatting.\n\n")
	for _, h := range headlines {
		fmt.Fprintf(&sb, "- %s\n", h)
	}
	return sb.String()
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		if sb.Len() > 0 {
			break
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errors.New("summary: empty response")
	}
	return text, nil
}
