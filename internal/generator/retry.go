package generator

import (
	"context"
	"fmt"
	"log"
	"time"

	"podium/internal/persona"
)

// Retrying bounds every generator call with a timeout and retries transient
// failures with doubling backoff. Malformed responses are retried too: the
// model may produce valid JSON on the next attempt. Context cancellation is
// honored between attempts.
type Retrying struct {
	inner       Generator
	maxAttempts int
	baseBackoff time.Duration
	timeout     time.Duration
}

// NewRetrying wraps a generator in the bounded-retry policy. maxAttempts <= 0
// falls back to 3, timeout <= 0 to 30s.
func NewRetrying(inner Generator, maxAttempts int, timeout time.Duration) *Retrying {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Retrying{
		inner:       inner,
		maxAttempts: maxAttempts,
		baseBackoff: 500 * time.Millisecond,
		timeout:     timeout,
	}
}

func (r *Retrying) GenerateQuestion(
	ctx context.Context,
	p persona.Persona,
	topic string,
	previousQuestions []string,
) (*Question, error) {
	var out *Question
	err := r.do(ctx, "question", func(ctx context.Context) error {
		q, err := r.inner.GenerateQuestion(ctx, p, topic, previousQuestions)
		out = q
		return err
	})
	return out, err
}

func (r *Retrying) GenerateFeedback(
	ctx context.Context,
	p persona.Persona,
	question, answer, topic string,
) (*Feedback, error) {
	var out *Feedback
	err := r.do(ctx, "feedback", func(ctx context.Context) error {
		fb, err := r.inner.GenerateFeedback(ctx, p, question, answer, topic)
		out = fb
		return err
	})
	return out, err
}

func (r *Retrying) do(ctx context.Context, op string, call func(ctx context.Context) error) error {
	backoff := r.baseBackoff
	var lastErr error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := call(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err
		log.Printf("generator %s attempt %d/%d failed: %v", op, attempt, r.maxAttempts, err)

		if attempt == r.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}
