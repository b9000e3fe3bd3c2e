package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"podium/internal/config"
	"podium/internal/persona"

	"google.golang.org/genai"
)

// GeminiGenerator implements Generator on top of the Gemini API.
type GeminiGenerator struct {
	client    *genai.Client
	modelName string
}

// NewGeminiGenerator creates a Gemini-backed generator from config.
func NewGeminiGenerator(ctx context.Context, cfg config.LLMConfig) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key must be set")
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiGenerator{
		client:    client,
		modelName: modelName,
	}, nil
}

// GenerateQuestion implements Generator.
func (g *GeminiGenerator) GenerateQuestion(
	ctx context.Context,
	p persona.Persona,
	topic string,
	previousQuestions []string,
) (*Question, error) {
	raw, err := g.generate(ctx, p, buildQuestionPrompt(p, topic, previousQuestions))
	if err != nil {
		return nil, err
	}

	var q Question
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(q.Question) == "" {
		return nil, fmt.Errorf("%w: empty question", ErrMalformed)
	}
	return &q, nil
}

// GenerateFeedback implements Generator.
func (g *GeminiGenerator) GenerateFeedback(
	ctx context.Context,
	p persona.Persona,
	question, answer, topic string,
) (*Feedback, error) {
	raw, err := g.generate(ctx, p, buildFeedbackPrompt(p, question, answer, topic))
	if err != nil {
		return nil, err
	}

	var fb Feedback
	if err := json.Unmarshal([]byte(raw), &fb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if fb.Score < 1 || fb.Score > 10 {
		return nil, fmt.Errorf("%w: score %d out of range", ErrMalformed, fb.Score)
	}
	if strings.TrimSpace(fb.Feedback) == "" {
		return nil, fmt.Errorf("%w: empty feedback", ErrMalformed)
	}
	return &fb, nil
}

func (g *GeminiGenerator) generate(ctx context.Context, p persona.Persona, prompt string) (string, error) {
	temp := float32(0.7)
	topP := float32(0.9)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(buildSystemPrompt(p), genai.RoleUser),
		Temperature:       &temp,
		TopP:              &topP,
		MaxOutputTokens:   2048,
		ResponseMIMEType:  "application/json",
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	res, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty response", ErrMalformed)
	}
	return text, nil
}
