// Package session drives the turn-based practice loop: request a question,
// record the answer, request feedback and a score, then rotate persona,
// continue or terminate. Sessions and turns are owned by the single logical
// flow that created them; the credit row is the only shared resource and the
// ledger guards it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"podium/internal/generator"
	"podium/internal/ledger"
	"podium/internal/models"
	"podium/internal/persona"
	"podium/internal/util"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrValidation marks bad caller input. Never retried automatically.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned for unknown or foreign sessions and turns.
	ErrNotFound = errors.New("session not found")
	// ErrNotActive is returned when an operation needs an in_progress session.
	ErrNotActive = errors.New("session is not in progress")
	// ErrTurnNotOpen is returned when the turn is not the current open one.
	ErrTurnNotOpen = errors.New("turn is not the open turn")
	// ErrTurnConflict is returned when answering an already-answered turn.
	// The stored answer is left unchanged.
	ErrTurnConflict = errors.New("turn already answered")
)

// Costs is the credit price of starting each session kind.
type Costs struct {
	Interview    int
	Presentation int
}

// Engine is the session state machine.
type Engine struct {
	db       *gorm.DB
	ledger   *ledger.Service
	gen      generator.Generator
	costs    Costs
	maxTurns int
	now      func() time.Time
}

func NewEngine(db *gorm.DB, led *ledger.Service, gen generator.Generator, costs Costs, maxTurns int) *Engine {
	if maxTurns <= 0 {
		maxTurns = 6
	}
	return &Engine{
		db:       db,
		ledger:   led,
		gen:      gen,
		costs:    costs,
		maxTurns: maxTurns,
		now:      time.Now,
	}
}

// StartResult is the outcome of starting a session: the session row, its
// first open turn and the persona asking it.
type StartResult struct {
	Session *models.Session
	Turn    *models.Turn
	Persona persona.Persona
}

// Start validates input, debits one session's worth of credit, creates the
// session in_progress at persona index 0 and creates turn 1 with its first
// question. If anything fails after the debit, a compensating refund is
// issued so credit is never lost.
func (e *Engine) Start(ctx context.Context, userID uint, kind, topic string) (*StartResult, error) {
	topic = strings.TrimSpace(topic)
	if err := util.ValidateKind(kind); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := util.ValidateTopic(topic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	cost := e.costs.Interview
	if kind == models.KindPresentation {
		cost = e.costs.Presentation
	}

	sessionID := uuid.NewString()
	if _, err := e.ledger.Debit(userID, cost, fmt.Sprintf("Started %s session", kind), &sessionID); err != nil {
		return nil, err
	}

	res, err := e.createSession(ctx, userID, sessionID, kind, topic, cost)
	if err != nil {
		// compensating transaction: the debit must not outlive a session
		// that was never created
		if _, rerr := e.ledger.Credit(userID, cost, models.TxRefund, "",
			fmt.Sprintf("Refund: %s session start failed", kind), &sessionID); rerr != nil {
			log.Printf("refund after failed session start for user %d: %v", userID, rerr)
		}
		return nil, err
	}
	return res, nil
}

func (e *Engine) createSession(ctx context.Context, userID uint, sessionID, kind, topic string, cost int) (*StartResult, error) {
	cat := persona.ForKind(kind)
	first := cat.At(0)

	q, err := e.gen.GenerateQuestion(ctx, first, topic, nil)
	if err != nil {
		return nil, err
	}

	now := e.now()
	sess := &models.Session{
		ID:             sessionID,
		UserID:         userID,
		Kind:           kind,
		Topic:          topic,
		Status:         models.StatusInProgress,
		Catalog:        cat.Name(),
		PersonaIndex:   0,
		CreditsCharged: cost,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	turn := &models.Turn{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Seq:         1,
		PersonaID:   first.ID,
		PersonaRole: first.Role,
		Question:    q.Question,
	}

	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sess).Error; err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		if err := tx.Create(turn).Error; err != nil {
			return fmt.Errorf("create turn: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &StartResult{Session: sess, Turn: turn, Persona: first}, nil
}

// AnswerResult is the outcome of a scored turn: the recorded feedback, and
// either the next open turn or the completed session's overall score.
type AnswerResult struct {
	Turn         *models.Turn
	NextTurn     *models.Turn
	NextPersona  persona.Persona
	Completed    bool
	OverallScore *int
}

// SubmitAnswer records the answer on the current open turn and asks the
// generator for feedback and a score. Answering any turn other than the open
// one, or a turn that already has an answer, is rejected and leaves stored
// state unchanged. On generator failure the answer stays recorded, no score
// is invented, and the turn can be retried with RetryFeedback.
func (e *Engine) SubmitAnswer(ctx context.Context, userID uint, sessionID, turnID, answer string) (*AnswerResult, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, fmt.Errorf("%w: answer is empty", ErrValidation)
	}

	sess, err := e.owned(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.StatusInProgress {
		return nil, ErrNotActive
	}

	turn, err := e.turn(sessionID, turnID)
	if err != nil {
		return nil, err
	}
	open, err := e.latestTurn(sessionID)
	if err != nil {
		return nil, err
	}
	if turn.ID != open.ID {
		return nil, ErrTurnNotOpen
	}
	if turn.Answered() {
		return nil, ErrTurnConflict
	}

	if err := e.db.Model(turn).Update("answer", answer).Error; err != nil {
		return nil, fmt.Errorf("store answer: %w", err)
	}
	turn.Answer = &answer

	return e.scoreAndAdvance(ctx, sess, turn)
}

// RetryFeedback re-runs feedback generation for an answered turn whose
// earlier scoring attempt exhausted its retries. The stored answer is reused;
// already-scored turns are immutable.
func (e *Engine) RetryFeedback(ctx context.Context, userID uint, sessionID, turnID string) (*AnswerResult, error) {
	sess, err := e.owned(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.StatusInProgress {
		return nil, ErrNotActive
	}

	turn, err := e.turn(sessionID, turnID)
	if err != nil {
		return nil, err
	}
	if !turn.Answered() {
		return nil, fmt.Errorf("%w: turn has no answer to score", ErrValidation)
	}
	if turn.Scored() {
		return nil, ErrTurnConflict
	}

	return e.scoreAndAdvance(ctx, sess, turn)
}

func (e *Engine) scoreAndAdvance(ctx context.Context, sess *models.Session, turn *models.Turn) (*AnswerResult, error) {
	cat := persona.ForKind(sess.Kind)
	p, ok := cat.ByID(turn.PersonaID)
	if !ok {
		return nil, fmt.Errorf("unknown persona %q on turn %s", turn.PersonaID, turn.ID)
	}

	fb, err := e.gen.GenerateFeedback(ctx, p, turn.Question, *turn.Answer, sess.Topic)
	if err != nil {
		// answer is kept, no sentinel score: the turn stays retryable
		return nil, err
	}
	if err := util.ValidateScore(fb.Score); err != nil {
		return nil, fmt.Errorf("%w: %v", generator.ErrMalformed, err)
	}

	updates := map[string]interface{}{
		"feedback":  fb.Feedback,
		"improved":  fb.Improved,
		"satisfied": fb.Satisfied,
		"score":     fb.Score,
	}
	if err := e.db.Model(turn).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("store feedback: %w", err)
	}
	turn.Feedback = &fb.Feedback
	turn.Improved = &fb.Improved
	turn.Satisfied = &fb.Satisfied
	turn.Score = &fb.Score

	// forced termination once the turn budget is spent
	if turn.Seq >= e.maxTurns {
		overall, err := e.complete(sess)
		if err != nil {
			return nil, err
		}
		return &AnswerResult{Turn: turn, Completed: true, OverallScore: overall}, nil
	}

	next, nextPersona, err := e.openNextTurn(ctx, sess, turn.Seq)
	if err != nil {
		// feedback is already persisted; CurrentTurn recovers by generating
		// the next question again
		return nil, err
	}

	return &AnswerResult{Turn: turn, NextTurn: next, NextPersona: nextPersona}, nil
}

func (e *Engine) openNextTurn(ctx context.Context, sess *models.Session, lastSeq int) (*models.Turn, persona.Persona, error) {
	cat := persona.ForKind(sess.Kind)
	nextIdx := cat.Next(sess.PersonaIndex)
	nextPersona := cat.At(nextIdx)

	prev, err := e.questions(sess.ID)
	if err != nil {
		return nil, persona.Persona{}, err
	}

	q, err := e.gen.GenerateQuestion(ctx, nextPersona, sess.Topic, prev)
	if err != nil {
		return nil, persona.Persona{}, err
	}

	next := &models.Turn{
		ID:          uuid.NewString(),
		SessionID:   sess.ID,
		Seq:         lastSeq + 1,
		PersonaID:   nextPersona.ID,
		PersonaRole: nextPersona.Role,
		Question:    q.Question,
	}

	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(next).Error; err != nil {
			return fmt.Errorf("create turn: %w", err)
		}
		if err := tx.Model(sess).Updates(map[string]interface{}{
			"persona_index": nextIdx,
			"updated_at":    e.now(),
		}).Error; err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, persona.Persona{}, err
	}
	sess.PersonaIndex = nextIdx

	return next, nextPersona, nil
}

// CurrentTurn returns the open turn of an in_progress session. When the
// latest turn is already scored (a previous next-question generation failed
// mid-advance), it creates the next turn so the session can continue. A
// scored final turn means a completion write was lost; the session is
// completed here instead of opening a turn past the maximum.
func (e *Engine) CurrentTurn(ctx context.Context, userID uint, sessionID string) (*models.Turn, error) {
	sess, err := e.owned(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.StatusInProgress {
		return nil, ErrNotActive
	}

	latest, err := e.latestTurn(sessionID)
	if err != nil {
		return nil, err
	}
	if !latest.Scored() {
		return latest, nil
	}

	if latest.Seq >= e.maxTurns {
		if _, err := e.complete(sess); err != nil {
			return nil, err
		}
		return nil, ErrNotActive
	}

	next, _, err := e.openNextTurn(ctx, sess, latest.Seq)
	if err != nil {
		return nil, err
	}
	return next, nil
}

// Finish freezes further turns and computes the overall score. Idempotent:
// finishing a completed session returns the persisted score without
// recomputation.
func (e *Engine) Finish(ctx context.Context, userID uint, sessionID string) (*models.Session, error) {
	sess, err := e.owned(sessionID, userID)
	if err != nil {
		return nil, err
	}

	switch sess.Status {
	case models.StatusCompleted:
		return sess, nil
	case models.StatusCancelled:
		return nil, ErrNotActive
	}

	if _, err := e.complete(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (e *Engine) complete(sess *models.Session) (*int, error) {
	var scores []int
	if err := e.db.Model(&models.Turn{}).
		Where("session_id = ? AND score IS NOT NULL", sess.ID).
		Order("seq ASC").
		Pluck("score", &scores).Error; err != nil {
		return nil, fmt.Errorf("collect scores: %w", err)
	}

	// unscored turns are excluded, never counted as zero
	overall := Aggregate(scores)
	now := e.now()

	if err := e.db.Model(sess).Updates(map[string]interface{}{
		"status":        models.StatusCompleted,
		"overall_score": overall,
		"completed_at":  now,
		"updated_at":    now,
	}).Error; err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}
	sess.Status = models.StatusCompleted
	sess.OverallScore = overall
	sess.CompletedAt = &now

	return overall, nil
}

// Cancel moves an in_progress session to cancelled. Cancelling twice is a
// no-op; a completed session cannot be cancelled. Credits are not refunded.
func (e *Engine) Cancel(ctx context.Context, userID uint, sessionID string) (*models.Session, error) {
	sess, err := e.owned(sessionID, userID)
	if err != nil {
		return nil, err
	}

	switch sess.Status {
	case models.StatusCancelled:
		return sess, nil
	case models.StatusCompleted:
		return nil, ErrNotActive
	}

	now := e.now()
	if err := e.db.Model(sess).Updates(map[string]interface{}{
		"status":     models.StatusCancelled,
		"updated_at": now,
	}).Error; err != nil {
		return nil, fmt.Errorf("cancel session: %w", err)
	}
	sess.Status = models.StatusCancelled
	return sess, nil
}

// Get returns a session with its turns ordered by seq. Foreign sessions are
// reported as not found.
func (e *Engine) Get(userID uint, sessionID string) (*models.Session, []models.Turn, error) {
	sess, err := e.owned(sessionID, userID)
	if err != nil {
		return nil, nil, err
	}

	var turns []models.Turn
	if err := e.db.Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&turns).Error; err != nil {
		return nil, nil, fmt.Errorf("load turns: %w", err)
	}
	return sess, turns, nil
}

// List returns the user's sessions newest-first, with total count.
func (e *Engine) List(userID uint, page, pageSize int) ([]models.Session, int64, error) {
	var total int64
	if err := e.db.Model(&models.Session{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	var sessions []models.Session
	if err := e.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&sessions).Error; err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, total, nil
}

func (e *Engine) owned(sessionID string, userID uint) (*models.Session, error) {
	var sess models.Session
	err := e.db.Where("id = ? AND user_id = ?", sessionID, userID).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &sess, nil
}

func (e *Engine) turn(sessionID, turnID string) (*models.Turn, error) {
	var turn models.Turn
	err := e.db.Where("id = ? AND session_id = ?", turnID, sessionID).First(&turn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load turn: %w", err)
	}
	return &turn, nil
}

func (e *Engine) latestTurn(sessionID string) (*models.Turn, error) {
	var turn models.Turn
	err := e.db.Where("session_id = ?", sessionID).
		Order("seq DESC").
		First(&turn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load latest turn: %w", err)
	}
	return &turn, nil
}

func (e *Engine) questions(sessionID string) ([]string, error) {
	var qs []string
	if err := e.db.Model(&models.Turn{}).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Pluck("question", &qs).Error; err != nil {
		return nil, fmt.Errorf("collect questions: %w", err)
	}
	return qs, nil
}
