package llm

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/avdeyev/mediq/internal/domain"
	"google.golang.org/genai"
)

// GeminiClient implements Provider on top of the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini-backed provider.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY must be set for the gemini provider")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	return &GeminiClient{client: client, model: model}, nil
}

// Complete streams completion fragments from Gemini.
func (g *GeminiClient) Complete(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var contents []*genai.Content
		for _, turn := range req.History {
			role := genai.Role(genai.RoleModel)
			if turn.Role == domain.RoleUser {
				role = genai.RoleUser
			}
			contents = append(contents, genai.NewContentFromText(turn.Text, role))
		}
		contents = append(contents, genai.NewContentFromText(req.UserMessage, genai.RoleUser))

		temp := float32(Temperature)
		cfg := &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
			Temperature:       &temp,
			MaxOutputTokens:   int32(MaxTokens),
		}

		for chunk, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, cfg) {
			if err != nil {
				slog.Error("gemini stream failed", "model", g.model, "error", err)
				yield("", fmt.Errorf("%w: %v", ErrProvider, err))
				return
			}
			text := chunk.Text()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}
