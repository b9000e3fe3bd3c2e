package generator

import (
	"context"
	"errors"

	"podium/internal/persona"
)

// ErrUnavailable is returned once the bounded retry policy is exhausted.
// Local state is never mutated on this path; the turn stays retryable.
var ErrUnavailable = errors.New("generator unavailable")

// ErrMalformed marks a response the model returned but that does not satisfy
// the contract (non-JSON, missing fields, score out of 1..10). It is a fatal
// adapter error, never converted into a zero score.
var ErrMalformed = errors.New("malformed generator response")

// Question is the generated next question for a turn.
type Question struct {
	Question string `json:"question"`
}

// Feedback is the structured evaluation of one answer.
type Feedback struct {
	Score     int    `json:"score"` // 1..10
	Feedback  string `json:"feedback"`
	Improved  string `json:"improved_answer"`
	Satisfied bool   `json:"satisfied"`
}

// Generator wraps the external text-generation call. Implementations hold no
// session state; everything needed is passed per call.
type Generator interface {
	GenerateQuestion(ctx context.Context, p persona.Persona, topic string, previousQuestions []string) (*Question, error)
	GenerateFeedback(ctx context.Context, p persona.Persona, question, answer, topic string) (*Feedback, error)
}
