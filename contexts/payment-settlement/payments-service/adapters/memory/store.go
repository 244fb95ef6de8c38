package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"checkout/contexts/payment-settlement/payments-service/domain/entities"
	domainerrors "checkout/contexts/payment-settlement/payments-service/domain/errors"
	"checkout/contexts/payment-settlement/payments-service/ports"
	"checkout/internal/shared/events"
	"checkout/internal/shared/outbox"
	outboxmemory "checkout/internal/shared/outbox/memory"
)

// Store is the in-memory account repository and settlement store used by
// tests and in-memory modules. Settlement mutates nothing until the result
// event has been built, which gives it the same all-or-nothing shape as the
// database transaction.
type Store struct {
	mu           sync.RWMutex
	accounts     map[string]entities.Account
	transactions map[string]entities.PaymentTransaction
	outbox       *outboxmemory.Store
}

func NewStore(outboxStore *outboxmemory.Store) *Store {
	if outboxStore == nil {
		outboxStore = outboxmemory.NewStore()
	}
	return &Store{
		accounts:     make(map[string]entities.Account),
		transactions: make(map[string]entities.PaymentTransaction),
		outbox:       outboxStore,
	}
}

// Outbox exposes the backing outbox store for dispatcher wiring.
func (s *Store) Outbox() *outboxmemory.Store {
	return s.outbox
}

func (s *Store) CreateAccount(_ context.Context, account entities.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[account.UserID]; exists {
		return domainerrors.ErrAccountExists
	}
	s.accounts[account.UserID] = account
	return nil
}

func (s *Store) GetAccount(_ context.Context, userID string) (entities.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[strings.TrimSpace(userID)]
	if !ok {
		return entities.Account{}, domainerrors.ErrAccountNotFound
	}
	return account, nil
}

func (s *Store) TopUp(_ context.Context, userID string, amountMinor int64, updatedAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[strings.TrimSpace(userID)]
	if !ok {
		return 0, domainerrors.ErrAccountNotFound
	}
	account.BalanceMinor += amountMinor
	account.UpdatedAt = updatedAt.UTC()
	s.accounts[account.UserID] = account
	return account.BalanceMinor, nil
}

func (s *Store) RecordSettlement(_ context.Context, cmd ports.SettlementCommand, enqueue ports.EnqueueFunc) (ports.SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	receipt := outbox.Receipt{
		InboxID:     cmd.ReceiptID,
		MessageID:   cmd.MessageID,
		Consumer:    cmd.Consumer,
		ProcessedAt: cmd.Now.UTC(),
	}

	if existing, ok := s.transactions[cmd.OrderID]; ok {
		msg, err := enqueue(existing)
		if err != nil {
			return ports.SettlementResult{}, err
		}
		if err := s.outbox.AddReceipt(receipt); err != nil {
			return ports.SettlementResult{Replayed: true}, nil
		}
		s.outbox.Append(msg)
		return ports.SettlementResult{Reused: true, Transaction: existing}, nil
	}

	transaction := entities.PaymentTransaction{
		TransactionID: cmd.TransactionID,
		OrderID:       cmd.OrderID,
		UserID:        cmd.UserID,
		AmountMinor:   cmd.AmountMinor,
		Status:        entities.TransactionSucceeded,
		CreatedAt:     cmd.Now.UTC(),
	}

	account, ok := s.accounts[cmd.UserID]
	switch {
	case !ok:
		transaction.Status = entities.TransactionFailed
		transaction.FailureReason = events.ReasonAccountNotFound
	case account.BalanceMinor < cmd.AmountMinor:
		transaction.Status = entities.TransactionFailed
		transaction.FailureReason = events.ReasonInsufficientFunds
	}

	msg, err := enqueue(transaction)
	if err != nil {
		return ports.SettlementResult{}, err
	}
	if err := s.outbox.AddReceipt(receipt); err != nil {
		return ports.SettlementResult{Replayed: true}, nil
	}

	if transaction.Succeeded() {
		account.BalanceMinor -= cmd.AmountMinor
		account.UpdatedAt = cmd.Now.UTC()
		s.accounts[account.UserID] = account
	}
	s.transactions[transaction.OrderID] = transaction
	s.outbox.Append(msg)
	return ports.SettlementResult{Transaction: transaction}, nil
}

// Transaction returns the settlement recorded for an order, if any.
func (s *Store) Transaction(orderID string) (entities.PaymentTransaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	transaction, ok := s.transactions[orderID]
	return transaction, ok
}

// NewID satisfies ports.IDGenerator so the store can double as test wiring.
func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}
