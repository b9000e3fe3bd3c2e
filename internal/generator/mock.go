package generator

import (
	"context"
	"fmt"

	"podium/internal/persona"
)

// MockGenerator is a deterministic Generator used for local development and
// tests. No network calls.
type MockGenerator struct {
	Score     int
	Satisfied bool
}

func NewMockGenerator() *MockGenerator {
	return &MockGenerator{Score: 7, Satisfied: true}
}

func (m *MockGenerator) GenerateQuestion(
	_ context.Context,
	p persona.Persona,
	topic string,
	previousQuestions []string,
) (*Question, error) {
	return &Question{
		Question: fmt.Sprintf("[%s] Question %d about %s: walk me through your thinking.",
			p.Role, len(previousQuestions)+1, topic),
	}, nil
}

func (m *MockGenerator) GenerateFeedback(
	_ context.Context,
	p persona.Persona,
	question, answer, topic string,
) (*Feedback, error) {
	return &Feedback{
		Score:     m.Score,
		Feedback:  fmt.Sprintf("As %s: a reasonable answer to %q, but tie it back to %s.", p.Role, question, topic),
		Improved:  answer + " And here is how it impacts the wider business.",
		Satisfied: m.Satisfied,
	}, nil
}
