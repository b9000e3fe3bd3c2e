// Package ledger is the authoritative record of prepaid credit. Balance
// mutations are atomic units: balance read, balance write and transaction-log
// append happen inside one database transaction, serialized per user, so two
// concurrent debits can never both spend the last credit and a payment
// reference can never be credited twice.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"podium/internal/models"

	"gorm.io/gorm"
)

// ErrInsufficientCredit is returned when a debit exceeds the balance. State
// is left untouched.
var ErrInsufficientCredit = errors.New("insufficient credit")

// Service owns all reads and writes of CreditBalance and CreditTransaction.
type Service struct {
	db *gorm.DB

	mu    sync.Mutex
	users map[uint]*sync.Mutex
}

func NewService(db *gorm.DB) *Service {
	return &Service{
		db:    db,
		users: make(map[uint]*sync.Mutex),
	}
}

// userLock returns the mutual-exclusion scope for one user's balance row.
// Calls for different users never block each other.
func (s *Service) userLock(userID uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.users[userID]
	if !ok {
		l = &sync.Mutex{}
		s.users[userID] = l
	}
	return l
}

// Account returns the user's balance row, creating a zeroed one on first use.
func (s *Service) Account(userID uint) (*models.CreditBalance, error) {
	var bal models.CreditBalance
	err := s.db.Where("user_id = ?", userID).First(&bal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		lock := s.userLock(userID)
		lock.Lock()
		defer lock.Unlock()

		bal = models.CreditBalance{UserID: userID}
		if err := s.db.Where("user_id = ?", userID).FirstOrCreate(&bal).Error; err != nil {
			return nil, fmt.Errorf("create balance: %w", err)
		}
		return &bal, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	return &bal, nil
}

// Debit spends credit. Fails with ErrInsufficientCredit when amount exceeds
// the balance; on success it decrements the balance, increments lifetime
// usage and appends a negative usage transaction, all-or-nothing.
func (s *Service) Debit(userID uint, amount int, description string, sessionID *string) (*models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	var tx models.CreditTransaction
	err := s.db.Transaction(func(dbtx *gorm.DB) error {
		bal := models.CreditBalance{UserID: userID}
		if err := dbtx.Where("user_id = ?", userID).FirstOrCreate(&bal).Error; err != nil {
			return fmt.Errorf("load balance: %w", err)
		}

		if amount > bal.Balance {
			return ErrInsufficientCredit
		}

		bal.Balance -= amount
		bal.LifetimeUsed += amount
		if err := dbtx.Save(&bal).Error; err != nil {
			return fmt.Errorf("update balance: %w", err)
		}

		tx = models.CreditTransaction{
			UserID:      userID,
			Amount:      -amount,
			Type:        models.TxUsage,
			SessionID:   sessionID,
			Description: description,
		}
		if err := dbtx.Create(&tx).Error; err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// Credit earns credit. When externalReference is non-empty and a transaction
// with that reference already exists, the call is a no-op returning the
// existing transaction: verification retries and duplicate webhooks credit at
// most once. The check-and-insert runs inside one transaction, and the unique
// index on external_reference is the backstop against a concurrent insert.
func (s *Service) Credit(userID uint, amount int, txType, externalReference, description string, sessionID *string) (*models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if externalReference != "" {
		if existing, err := s.byReference(externalReference); err == nil {
			return existing, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	var tx models.CreditTransaction
	err := s.db.Transaction(func(dbtx *gorm.DB) error {
		bal := models.CreditBalance{UserID: userID}
		if err := dbtx.Where("user_id = ?", userID).FirstOrCreate(&bal).Error; err != nil {
			return fmt.Errorf("load balance: %w", err)
		}

		bal.Balance += amount
		bal.LifetimeEarned += amount
		if err := dbtx.Save(&bal).Error; err != nil {
			return fmt.Errorf("update balance: %w", err)
		}

		tx = models.CreditTransaction{
			UserID:      userID,
			Amount:      amount,
			Type:        txType,
			SessionID:   sessionID,
			Description: description,
		}
		if externalReference != "" {
			ref := externalReference
			tx.ExternalReference = &ref
		}
		if err := dbtx.Create(&tx).Error; err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Lost the race on the reference: someone else already credited it.
		// That is the success path, not an error.
		return s.byReference(externalReference)
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// ByReference returns the transaction recorded for a payment reference.
func (s *Service) ByReference(reference string) (*models.CreditTransaction, error) {
	return s.byReference(reference)
}

func (s *Service) byReference(reference string) (*models.CreditTransaction, error) {
	var tx models.CreditTransaction
	if err := s.db.Where("external_reference = ?", reference).First(&tx).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

// History returns the user's transactions newest-first, with total count.
func (s *Service) History(userID uint, page, pageSize int) ([]models.CreditTransaction, int64, error) {
	var total int64
	if err := s.db.Model(&models.CreditTransaction{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	var txs []models.CreditTransaction
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&txs).Error; err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	return txs, total, nil
}

// AllTransactions returns the user's complete transaction history
// newest-first, for exports.
func (s *Service) AllTransactions(userID uint) ([]models.CreditTransaction, error) {
	var txs []models.CreditTransaction
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}
