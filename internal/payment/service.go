// Package payment reconciles external purchases with the credit ledger: one
// provider reference maps to exactly one ledger credit, no matter how many
// times verification runs.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"podium/internal/ledger"
	"podium/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrUnknownPackage is returned for a slug that is not in the catalog.
	ErrUnknownPackage = errors.New("unknown credit package")
	// ErrNotFound is returned for an unknown payment reference.
	ErrNotFound = errors.New("payment not found")
)

// Service owns payment intents and their reconciliation with the ledger.
type Service struct {
	db          *gorm.DB
	ledger      *ledger.Service
	provider    Provider
	catalog     *Catalog
	secretKey   string
	callbackURL string
	now         func() time.Time
}

func NewService(db *gorm.DB, led *ledger.Service, provider Provider, catalog *Catalog, secretKey, callbackURL string) *Service {
	return &Service{
		db:          db,
		ledger:      led,
		provider:    provider,
		catalog:     catalog,
		secretKey:   secretKey,
		callbackURL: callbackURL,
		now:         time.Now,
	}
}

func (s *Service) Catalog() *Catalog { return s.catalog }

// Initialize creates a payment intent bound to a fresh unique reference and
// opens the transaction with the provider. The ledger is not touched here.
func (s *Service) Initialize(ctx context.Context, user *models.User, slug string) (*models.PaymentIntent, string, error) {
	pkg, ok := s.catalog.BySlug(slug)
	if !ok {
		return nil, "", ErrUnknownPackage
	}

	reference := "pdm_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]

	intent := &models.PaymentIntent{
		UserID:           user.ID,
		Reference:        reference,
		PackageSlug:      pkg.Slug,
		PackageName:      pkg.Name,
		AmountMinor:      pkg.PriceMinor,
		Currency:         pkg.Currency,
		CreditsPurchased: pkg.TotalCredits(),
		Status:           models.PaymentInitialized,
		CustomerEmail:    user.Email,
	}
	if err := s.db.Create(intent).Error; err != nil {
		return nil, "", fmt.Errorf("create payment intent: %w", err)
	}

	redirectURL, err := s.provider.Initialize(ctx, user.Email, pkg.PriceMinor, reference, s.callbackURL)
	if err != nil {
		s.markFailed(intent, err.Error())
		return nil, "", err
	}
	return intent, redirectURL, nil
}

// VerifyResult is the caller-visible outcome of a verification attempt.
type VerifyResult struct {
	Success      bool
	CreditsAdded int
	NewBalance   int
	Message      string
}

// Verify resolves a reference to its final state. Already-verified intents
// return the previously computed result without re-querying the provider or
// re-crediting. Transient provider errors leave the intent initialized so the
// caller can retry; the unique reference on the ledger transaction makes
// crediting exactly-once even under concurrent calls.
func (s *Service) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	var intent models.PaymentIntent
	err := s.db.Where("reference = ?", reference).First(&intent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load payment intent: %w", err)
	}

	switch intent.Status {
	case models.PaymentVerified:
		return s.verifiedResult(&intent)
	case models.PaymentFailed:
		return &VerifyResult{Success: false, Message: failureMessage(&intent)}, nil
	}

	status, err := s.provider.Verify(ctx, reference)
	if err != nil {
		// intent stays initialized; retry later
		return nil, err
	}

	switch status.Status {
	case "success":
		if _, err := s.ledger.Credit(intent.UserID, intent.CreditsPurchased, models.TxPurchase,
			intent.Reference, "Purchased "+intent.PackageName, nil); err != nil {
			return nil, fmt.Errorf("credit purchase: %w", err)
		}

		now := s.now()
		// only the first verifier transitions the intent; a concurrent
		// winner leaves nothing to update and that is fine
		if err := s.db.Model(&models.PaymentIntent{}).
			Where("reference = ? AND status = ?", reference, models.PaymentInitialized).
			Updates(map[string]interface{}{
				"status":  models.PaymentVerified,
				"paid_at": now,
			}).Error; err != nil {
			return nil, fmt.Errorf("mark verified: %w", err)
		}
		return s.verifiedResult(&intent)

	case "failed", "abandoned":
		msg := status.Message
		if msg == "" {
			msg = "Payment was not completed"
		}
		s.markFailed(&intent, msg)
		return &VerifyResult{Success: false, Message: msg}, nil

	default:
		// still pending at the gateway; nothing credited, nothing finalized
		return &VerifyResult{Success: false, Message: "Payment is still pending, try again shortly"}, nil
	}
}

// VerifyForUser is Verify scoped to the caller: a reference owned by another
// user is reported as not found, so nobody can probe foreign references or
// read another account's balance.
func (s *Service) VerifyForUser(ctx context.Context, userID uint, reference string) (*VerifyResult, error) {
	var count int64
	if err := s.db.Model(&models.PaymentIntent{}).
		Where("reference = ? AND user_id = ?", reference, userID).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("load payment intent: %w", err)
	}
	if count == 0 {
		return nil, ErrNotFound
	}
	return s.Verify(ctx, reference)
}

func (s *Service) verifiedResult(intent *models.PaymentIntent) (*VerifyResult, error) {
	bal, err := s.ledger.Account(intent.UserID)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{
		Success:      true,
		CreditsAdded: intent.CreditsPurchased,
		NewBalance:   bal.Balance,
		Message:      "Payment verified",
	}, nil
}

func (s *Service) markFailed(intent *models.PaymentIntent, msg string) {
	if err := s.db.Model(&models.PaymentIntent{}).
		Where("reference = ? AND status = ?", intent.Reference, models.PaymentInitialized).
		Updates(map[string]interface{}{
			"status":          models.PaymentFailed,
			"failure_message": msg,
		}).Error; err != nil {
		log.Printf("mark payment %s failed: %v", intent.Reference, err)
	}
}

func failureMessage(intent *models.PaymentIntent) string {
	if intent.FailureMessage != "" {
		return intent.FailureMessage
	}
	return "Payment failed"
}

// History returns the user's payment intents newest-first, with total count.
func (s *Service) History(userID uint, page, pageSize int) ([]models.PaymentIntent, int64, error) {
	var total int64
	if err := s.db.Model(&models.PaymentIntent{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	var intents []models.PaymentIntent
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&intents).Error; err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	return intents, total, nil
}

type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
	} `json:"data"`
}

// HandleWebhook verifies the provider signature and, for successful charges,
// runs the same verification path as a user-initiated verify. Duplicate
// webhook deliveries are harmless: crediting is idempotent per reference.
func (s *Service) HandleWebhook(ctx context.Context, signature string, body []byte) error {
	mac := hmac.New(sha512.New, []byte(s.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("invalid webhook signature")
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("decode webhook: %w", err)
	}

	if payload.Event != "charge.success" || payload.Data.Reference == "" {
		return nil
	}
	_, err := s.Verify(ctx, payload.Data.Reference)
	return err
}
