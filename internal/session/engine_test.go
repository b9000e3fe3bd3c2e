package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"podium/internal/database"
	"podium/internal/generator"
	"podium/internal/ledger"
	"podium/internal/models"
	"podium/internal/persona"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// fakeGen wraps the mock generator with switchable failure modes.
type fakeGen struct {
	inner        *generator.MockGenerator
	failFeedback bool
	failQuestion bool
}

func (f *fakeGen) GenerateQuestion(ctx context.Context, p persona.Persona, topic string, prev []string) (*generator.Question, error) {
	if f.failQuestion {
		return nil, fmt.Errorf("%w: upstream down", generator.ErrUnavailable)
	}
	return f.inner.GenerateQuestion(ctx, p, topic, prev)
}

func (f *fakeGen) GenerateFeedback(ctx context.Context, p persona.Persona, question, answer, topic string) (*generator.Feedback, error) {
	if f.failFeedback {
		return nil, fmt.Errorf("%w: upstream down", generator.ErrUnavailable)
	}
	return f.inner.GenerateFeedback(ctx, p, question, answer, topic)
}

type fixture struct {
	db     *gorm.DB
	led    *ledger.Service
	gen    *fakeGen
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	db := newTestDB(t)
	led := ledger.NewService(db)
	gen := &fakeGen{inner: generator.NewMockGenerator()}
	eng := NewEngine(db, led, gen, Costs{Interview: 10, Presentation: 15}, 6)
	return &fixture{db: db, led: led, gen: gen, engine: eng}
}

func (f *fixture) fund(t *testing.T, userID uint, amount int) {
	t.Helper()
	if _, err := f.led.Credit(userID, amount, models.TxBonus, "", "test funds", nil); err != nil {
		t.Fatalf("fund: %v", err)
	}
}

func (f *fixture) balance(t *testing.T, userID uint) int {
	t.Helper()
	bal, err := f.led.Account(userID)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if bal.LifetimeEarned-bal.LifetimeUsed != bal.Balance {
		t.Fatalf("ledger invariant broken: %+v", bal)
	}
	return bal.Balance
}

func TestStart_InsufficientCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Start(ctx, 1, models.KindInterview, "Software Engineer")
	if !errors.Is(err, ledger.ErrInsufficientCredit) {
		t.Fatalf("Start error = %v, want ErrInsufficientCredit", err)
	}
	if got := f.balance(t, 1); got != 0 {
		t.Fatalf("balance = %d, want 0 (unchanged)", got)
	}
	var count int64
	f.db.Model(&models.Session{}).Count(&count)
	if count != 0 {
		t.Fatalf("sessions = %d, want 0", count)
	}
}

func TestStart_DebitsAndOpensFirstTurn(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1, 30)
	ctx := context.Background()

	res, err := f.engine.Start(ctx, 1, models.KindInterview, "Software Engineer")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.Session.Status != models.StatusInProgress {
		t.Errorf("status = %s, want in_progress", res.Session.Status)
	}
	if res.Turn.Seq != 1 || res.Turn.Question == "" || res.Turn.Answered() {
		t.Errorf("first turn = %+v, want unanswered seq 1 with question", res.Turn)
	}
	if res.Persona.ID != "hr-manager" {
		t.Errorf("persona = %s, want the single interviewer", res.Persona.ID)
	}
	if got := f.balance(t, 1); got != 20 {
		t.Errorf("balance = %d, want 20 after debit of 10", got)
	}
}

func TestStart_RefundsWhenGenerationFails(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1, 30)
	f.gen.failQuestion = true
	ctx := context.Background()

	_, err := f.engine.Start(ctx, 1, models.KindPresentation, "Expansion plan")
	if !errors.Is(err, generator.ErrUnavailable) {
		t.Fatalf("Start error = %v, want ErrUnavailable", err)
	}

	if got := f.balance(t, 1); got != 30 {
		t.Fatalf("balance = %d, want 30 (debit compensated)", got)
	}
	var count int64
	f.db.Model(&models.Session{}).Count(&count)
	if count != 0 {
		t.Fatalf("sessions = %d, want 0 after rollback", count)
	}
	// the refund is a visible transaction, not a silent correction
	f.db.Model(&models.CreditTransaction{}).Where("type = ?", models.TxRefund).Count(&count)
	if count != 1 {
		t.Fatalf("refund transactions = %d, want 1", count)
	}
}

func TestSubmitAnswer_RecordsFeedbackAndAdvances(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1, 30)
	ctx := context.Background()

	res, err := f.engine.Start(ctx, 1, models.KindInterview, "Accountant")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	out, err := f.engine.SubmitAnswer(ctx, 1, res.Session.ID, res.Turn.ID, "I reconcile monthly.")
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if !out.Turn.Scored() || out.Turn.Feedback == nil {
		t.Fatalf("turn not scored: %+v", out.Turn)
	}
	if out.Completed {
		t.Fatal("session completed after one turn, want continuation")
	}
	if out.NextTurn == nil || out.NextTurn.Seq != 2 {
		t.Fatalf("next turn = %+v, want seq 2", out.NextTurn)
	}
	// interviews keep the single persona
	if out.NextTurn.PersonaID != res.Turn.PersonaID {
		t.Errorf("interview rotated persona: %s -> %s", res.Turn.PersonaID, out.NextTurn.PersonaID)
	}
}

func TestSubmitAnswer_ConflictKeepsStoredAnswer(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1, 30)
	ctx := context.Background()

	res, _ := f.engine.Start(ctx, 1, models.KindInterview, "Accountant")
	if _, err := f.engine.SubmitAnswer(ctx, 1, res.Session.ID, res.Turn.ID, "original answer"); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	_, err := f.engine.SubmitAnswer(ctx, 1, res.Session.ID, res.Turn.ID, "amended answer")
	if !errors.Is(err, ErrTurnNotOpen) && !errors.Is(err, ErrTurnConflict) {
		t.Fatalf("re-answer error = %v, want conflict", err)
	}

	var stored models.Turn
	f.db.First(&stored, "id = ?", res.Turn.ID)
	if stored.Answer == nil || *stored.Answer != "original answer" {
		t.Fatalf("stored answer = %v, want original unchanged", stored.Answer)
	}
}

func TestSubmitAnswer_RejectsForeignAndStaleTurns(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1, 60)
	ctx := context.Background()

	res, _ := f.engine.Start(ctx, 1, models.KindInterview, "Accountant")
	out, err := f.engine.SubmitAnswer(ctx, 1, res.Session.ID, res.Turn.ID, "first")
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	// scored turn 1 is no longer open
	if _, err := f.engine.SubmitAnswer(ctx, 1, res.Session.ID, res.Turn.ID, "again"); err == nil {
		t.Fatal("answering a closed turn succeeded, want error")
	}
	_ = out

	// another user cannot see the session
	if _, err := f.engine.SubmitAnswer(ctx, 2, res.Session.ID, res.Turn.ID, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign session error = %v, want ErrNotFound", err)
	}
}

func TestSubmitAnswer_FeedbackUnavailableIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1, 30)
	ctx := context.Background()

	res, _ := f.engine.Start(ctx, 1, models.KindInterview, "Accountant")

	f.gen.failFeedback = true
	_, err := f.engine.SubmitAnswer(ctx, 1, res.Session.ID, res.Turn.ID, "my answer")
	if !errors.Is(err, generator.ErrUnavailable) {
		t.Fatalf("SubmitAnswer error = %v, want ErrUnavailable", err)
	}

	var stored models.Turn
	f.db.First(&stored, "id = ?", res.Turn.ID)
	if stored.Answer == nil || *stored.Answer != "my answer" {
		t.Fatalf("answer not kept: %v", stored.Answer)
	}
	if stored.Score != nil {
		t.Fatalf("score invented on failure: %d", *stored.Score)
	}

	// a later retry succeeds with the stored answer
	f.gen.failFeedback = false
	out, err := f.engine.RetryFeedback(ctx, 1, res.Session.ID, res.Turn.ID)
	if err != nil {
		t.Fatalf("RetryFeedback: %v", err)
	}
	if !out.Turn.Scored() {
		t.Fatal("retried turn still unscored")
	}
	if out.NextTurn == nil || out.NextTurn.Seq != 2 {
		t.Fatalf("next turn = %+v, want seq 2", out.NextTurn)
	}
}

func TestPresentation_PanelRotationAndAutoComplete(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1, 30)
	ctx := context.Background()

	res, err := f.engine.Start(ctx, 1, models.KindPresentation, "Q3 budget review")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	personaSeq := []string{res.Turn.PersonaID}
	turn := res.Turn
	var final *AnswerResult

	for i := 0; i < 6; i++ {
		out, err := f.engine.SubmitAnswer(ctx, 1, res.Session.ID, turn.ID, fmt.Sprintf("answer %d", i+1))
		if err != nil {
			t.Fatalf("SubmitAnswer %d: %v", i+1, err)
		}
		final = out
		if out.Completed {
			break
		}
		personaSeq = append(personaSeq, out.NextTurn.PersonaID)
		turn = out.NextTurn
	}

	// panel of 4 starting at index 0: first five turns are ceo,cfo,hr,cto,ceo
	want := []string{"ceo", "cfo", "hr", "cto", "ceo"}
	for i := range want {
		if personaSeq[i] != want[i] {
			t.Fatalf("persona sequence = %v, want prefix %v", personaSeq, want)
		}
	}

	if final == nil || !final.Completed {
		t.Fatal("session did not auto-complete at the turn limit")
	}
	if final.OverallScore == nil || *final.OverallScore != 7 {
		t.Fatalf("overall = %v, want 7 (mean of six 7s)", final.OverallScore)
	}

	var sess models.Session
	f.db.First(&sess, "id = ?", res.Session.ID)
	if sess.Status != models.StatusCompleted {
		t.Fatalf("status = %s, want completed without explicit finish", sess.Status)
	}

	// turn seq is strictly increasing from 1 with no gaps
	var turns []models.Turn
	f.db.Where("session_id = ?", res.Session.ID).Order("seq ASC").Find(&turns)
	if len(turns) != 6 {
		t.Fatalf("turns = %d, want 6", len(turns))
	}
	for i, tn := range turns {
		if tn.Seq != i+1 {
			t.Fatalf("turn %d has seq %d, want %d", i, tn.Seq, i+1)
		}
	}
}

func TestFinish_IdempotentAndNullWithoutScores(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1, 60)
	ctx := context.Background()

	// no scored turns: overall stays null, not zero
	res, _ := f.engine.Start(ctx, 1, models.KindInterview, "Accountant")
	sess, err := f.engine.Finish(ctx, 1, res.Session.ID)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if sess.OverallScore != nil {
		t.Fatalf("overall = %d, want null for zero scored turns", *sess.OverallScore)
	}

	// scored session: repeated finish returns the cached value
	res2, _ := f.engine.Start(ctx, 1, models.KindInterview, "Accountant")
	if _, err := f.engine.SubmitAnswer(ctx, 1, res2.Session.ID, res2.Turn.ID, "answer"); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	first, err := f.engine.Finish(ctx, 1, res2.Session.ID)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	again, err := f.engine.Finish(ctx, 1, res2.Session.ID)
	if err != nil {
		t.Fatalf("second Finish: %v", err)
	}
	if first.OverallScore == nil || again.OverallScore == nil || *first.OverallScore != *again.OverallScore {
		t.Fatalf("finish not idempotent: %v then %v", first.OverallScore, again.OverallScore)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1, 60)
	ctx := context.Background()

	res, _ := f.engine.Start(ctx, 1, models.KindInterview, "Accountant")
	sess, err := f.engine.Cancel(ctx, 1, res.Session.ID)
	if err != nil || sess.Status != models.StatusCancelled {
		t.Fatalf("Cancel = (%+v, %v), want cancelled", sess, err)
	}
	// cancelling again is a no-op
	if _, err := f.engine.Cancel(ctx, 1, res.Session.ID); err != nil {
		t.Fatalf("second Cancel: %v", err)
	}
	// a cancelled session accepts no answers
	if _, err := f.engine.SubmitAnswer(ctx, 1, res.Session.ID, res.Turn.ID, "late"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("answer after cancel error = %v, want ErrNotActive", err)
	}
	// and cannot be finished
	if _, err := f.engine.Finish(ctx, 1, res.Session.ID); !errors.Is(err, ErrNotActive) {
		t.Fatalf("finish after cancel error = %v, want ErrNotActive", err)
	}
}

func TestCurrentTurn_RecoversAfterQuestionFailure(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1, 30)
	ctx := context.Background()

	res, _ := f.engine.Start(ctx, 1, models.KindPresentation, "Expansion plan")

	// feedback succeeds but the next question fails mid-advance
	f.gen.failQuestion = true
	_, err := f.engine.SubmitAnswer(ctx, 1, res.Session.ID, res.Turn.ID, "answer one")
	if !errors.Is(err, generator.ErrUnavailable) {
		t.Fatalf("SubmitAnswer error = %v, want ErrUnavailable", err)
	}

	f.gen.failQuestion = false
	next, err := f.engine.CurrentTurn(ctx, 1, res.Session.ID)
	if err != nil {
		t.Fatalf("CurrentTurn: %v", err)
	}
	if next.Seq != 2 || next.PersonaID != "cfo" {
		t.Fatalf("recovered turn = seq %d persona %s, want seq 2 cfo", next.Seq, next.PersonaID)
	}
}

func TestCurrentTurn_CompletesInsteadOfExceedingTurnLimit(t *testing.T) {
	f := newFixture(t)
	f.fund(t, 1, 30)
	ctx := context.Background()

	res, _ := f.engine.Start(ctx, 1, models.KindPresentation, "Expansion plan")
	turn := res.Turn
	for i := 0; i < 6; i++ {
		out, err := f.engine.SubmitAnswer(ctx, 1, res.Session.ID, turn.ID, fmt.Sprintf("answer %d", i+1))
		if err != nil {
			t.Fatalf("SubmitAnswer %d: %v", i+1, err)
		}
		if out.Completed {
			break
		}
		turn = out.NextTurn
	}

	// simulate a lost completion write: turn 6 is scored but the session
	// was never moved out of in_progress
	if err := f.db.Model(&models.Session{}).Where("id = ?", res.Session.ID).
		Updates(map[string]interface{}{
			"status":        models.StatusInProgress,
			"overall_score": nil,
			"completed_at":  nil,
		}).Error; err != nil {
		t.Fatalf("reset session: %v", err)
	}

	_, err := f.engine.CurrentTurn(ctx, 1, res.Session.ID)
	if !errors.Is(err, ErrNotActive) {
		t.Fatalf("CurrentTurn error = %v, want ErrNotActive", err)
	}

	var sess models.Session
	f.db.First(&sess, "id = ?", res.Session.ID)
	if sess.Status != models.StatusCompleted {
		t.Fatalf("status = %s, want completed", sess.Status)
	}
	if sess.OverallScore == nil || *sess.OverallScore != 7 {
		t.Fatalf("overall = %v, want 7 recomputed from scored turns", sess.OverallScore)
	}

	var count int64
	f.db.Model(&models.Turn{}).Where("session_id = ?", res.Session.ID).Count(&count)
	if count != 6 {
		t.Fatalf("turns = %d, want exactly 6, never a seventh", count)
	}
}
