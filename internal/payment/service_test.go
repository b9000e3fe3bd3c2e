package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"

	"podium/internal/config"
	"podium/internal/database"
	"podium/internal/ledger"
	"podium/internal/models"

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

// fakeProvider is a scripted gateway.
type fakeProvider struct {
	mu          sync.Mutex
	status      string
	initErr     error
	verifyErr   error
	verifyCalls int
}

func (f *fakeProvider) Initialize(_ context.Context, email string, amount int64, reference, callbackURL string) (string, error) {
	if f.initErr != nil {
		return "", f.initErr
	}
	return "https://checkout.example/" + reference, nil
}

func (f *fakeProvider) Verify(_ context.Context, reference string) (*ProviderStatus, error) {
	f.mu.Lock()
	f.verifyCalls++
	f.mu.Unlock()
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &ProviderStatus{Status: f.status, Message: "gateway says " + f.status}, nil
}

func testCatalog() *Catalog {
	return NewCatalog([]config.PackageConfig{
		{Slug: "starter", Name: "Starter", BaseCredits: 50, BonusCredits: 0, PriceMinor: 150000},
		{Slug: "standard", Name: "Standard", BaseCredits: 100, BonusCredits: 20, PriceMinor: 250000},
	})
}

type fixture struct {
	db       *gorm.DB
	led      *ledger.Service
	provider *fakeProvider
	svc      *Service
	user     *models.User
}

func newFixture(t *testing.T) *fixture {
	db := newTestDB(t)
	led := ledger.NewService(db)
	provider := &fakeProvider{status: "success"}
	svc := NewService(db, led, provider, testCatalog(), "sk_test_secret", "https://app.example/credits")

	user := &models.User{Username: "amaka", Email: "amaka@example.com", PasswordHash: "x"}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return &fixture{db: db, led: led, provider: provider, svc: svc, user: user}
}

func TestInitialize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	intent, redirect, err := f.svc.Initialize(ctx, f.user, "standard")
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if intent.Status != models.PaymentInitialized || intent.CreditsPurchased != 120 {
		t.Fatalf("intent = %+v, want initialized with 120 credits", intent)
	}
	if redirect == "" {
		t.Fatal("expected redirect url")
	}

	// the ledger is untouched at initiation
	bal, _ := f.led.Account(f.user.ID)
	if bal.Balance != 0 {
		t.Fatalf("balance = %d, want 0 before verification", bal.Balance)
	}
}

func TestInitialize_UnknownPackage(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.Initialize(context.Background(), f.user, "platinum")
	if !errors.Is(err, ErrUnknownPackage) {
		t.Fatalf("error = %v, want ErrUnknownPackage", err)
	}
}

func TestVerify_CreditsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	intent, _, err := f.svc.Initialize(ctx, f.user, "standard")
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	first, err := f.svc.Verify(ctx, intent.Reference)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !first.Success || first.CreditsAdded != 120 || first.NewBalance != 120 {
		t.Fatalf("first verify = %+v, want success +120 = 120", first)
	}

	// a second verify returns the cached result without re-crediting or
	// re-querying the gateway
	second, err := f.svc.Verify(ctx, intent.Reference)
	if err != nil {
		t.Fatalf("second Verify: %v", err)
	}
	if !second.Success || second.NewBalance != 120 {
		t.Fatalf("second verify = %+v, want success with balance still 120", second)
	}
	if f.provider.verifyCalls != 1 {
		t.Fatalf("provider verify calls = %d, want 1", f.provider.verifyCalls)
	}

	var count int64
	f.db.Model(&models.CreditTransaction{}).
		Where("external_reference = ? AND type = ?", intent.Reference, models.TxPurchase).
		Count(&count)
	if count != 1 {
		t.Fatalf("purchase transactions = %d, want exactly 1", count)
	}
}

func TestVerify_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	intent, _, err := f.svc.Initialize(ctx, f.user, "standard")
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	const n = 6
	var wg sync.WaitGroup
	results := make([]*VerifyResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Verify(ctx, intent.Reference)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("concurrent Verify %d: %v", i, errs[i])
		}
		if !results[i].Success {
			t.Fatalf("concurrent Verify %d not successful: %+v", i, results[i])
		}
	}

	bal, _ := f.led.Account(f.user.ID)
	if bal.Balance != 120 {
		t.Fatalf("balance = %d, want 120 (credited once under %d racers)", bal.Balance, n)
	}

	var count int64
	f.db.Model(&models.CreditTransaction{}).
		Where("external_reference = ?", intent.Reference).
		Count(&count)
	if count != 1 {
		t.Fatalf("transactions with reference = %d, want exactly 1", count)
	}
}

func TestVerify_FailureNeverCredits(t *testing.T) {
	f := newFixture(t)
	f.provider.status = "failed"
	ctx := context.Background()

	intent, _, _ := f.svc.Initialize(ctx, f.user, "starter")
	res, err := f.svc.Verify(ctx, intent.Reference)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Success {
		t.Fatal("failed payment verified successfully")
	}

	var stored models.PaymentIntent
	f.db.First(&stored, "reference = ?", intent.Reference)
	if stored.Status != models.PaymentFailed {
		t.Fatalf("intent status = %s, want failed", stored.Status)
	}

	bal, _ := f.led.Account(f.user.ID)
	if bal.Balance != 0 {
		t.Fatalf("balance = %d, want 0", bal.Balance)
	}

	// further verifies return the cached failure without a gateway call
	calls := f.provider.verifyCalls
	if res, err := f.svc.Verify(ctx, intent.Reference); err != nil || res.Success {
		t.Fatalf("cached failure verify = (%+v, %v)", res, err)
	}
	if f.provider.verifyCalls != calls {
		t.Fatal("cached failure still queried the gateway")
	}
}

func TestVerify_TransientErrorIsRetryable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	intent, _, _ := f.svc.Initialize(ctx, f.user, "starter")

	f.provider.verifyErr = fmt.Errorf("%w: gateway timeout", ErrProvider)
	if _, err := f.svc.Verify(ctx, intent.Reference); !errors.Is(err, ErrProvider) {
		t.Fatalf("error = %v, want ErrProvider", err)
	}

	var stored models.PaymentIntent
	f.db.First(&stored, "reference = ?", intent.Reference)
	if stored.Status != models.PaymentInitialized {
		t.Fatalf("intent status = %s, want still initialized", stored.Status)
	}

	// retry succeeds and credits once
	f.provider.verifyErr = nil
	res, err := f.svc.Verify(ctx, intent.Reference)
	if err != nil || !res.Success || res.CreditsAdded != 50 {
		t.Fatalf("retry verify = (%+v, %v), want success +50", res, err)
	}
}

func TestVerify_UnknownReference(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Verify(context.Background(), "pdm_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestVerifyForUser_ForeignReferenceNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	intent, _, err := f.svc.Initialize(ctx, f.user, "standard")
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	other := &models.User{Username: "chidi", Email: "chidi@example.com", PasswordHash: "x"}
	if err := f.db.Create(other).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}

	// another user's reference looks like it does not exist
	if _, err := f.svc.VerifyForUser(ctx, other.ID, intent.Reference); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign verify error = %v, want ErrNotFound", err)
	}
	// and nothing was credited to anyone
	bal, _ := f.led.Account(f.user.ID)
	if bal.Balance != 0 {
		t.Fatalf("owner balance = %d, want 0", bal.Balance)
	}

	// the owner still verifies normally
	res, err := f.svc.VerifyForUser(ctx, f.user.ID, intent.Reference)
	if err != nil {
		t.Fatalf("owner VerifyForUser: %v", err)
	}
	if !res.Success || res.NewBalance != 120 {
		t.Fatalf("owner verify = %+v, want success with balance 120", res)
	}
}

func TestHandleWebhook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	intent, _, _ := f.svc.Initialize(ctx, f.user, "standard")
	body := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"reference":%q}}`, intent.Reference))

	mac := hmac.New(sha512.New, []byte("sk_test_secret"))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	if err := f.svc.HandleWebhook(ctx, sig, body); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	bal, _ := f.led.Account(f.user.ID)
	if bal.Balance != 120 {
		t.Fatalf("balance = %d, want 120 after webhook", bal.Balance)
	}

	// duplicate delivery is harmless
	if err := f.svc.HandleWebhook(ctx, sig, body); err != nil {
		t.Fatalf("duplicate HandleWebhook: %v", err)
	}
	bal, _ = f.led.Account(f.user.ID)
	if bal.Balance != 120 {
		t.Fatalf("balance = %d after duplicate webhook, want 120", bal.Balance)
	}

	// invalid signature is rejected
	if err := f.svc.HandleWebhook(ctx, "deadbeef", body); err == nil {
		t.Fatal("webhook with bad signature accepted")
	}
}
