package application

import (
	"context"
	"log/slog"
	"strings"

	"checkout/contexts/payment-settlement/payments-service/domain/entities"
	domainerrors "checkout/contexts/payment-settlement/payments-service/domain/errors"
	"checkout/contexts/payment-settlement/payments-service/ports"
)

// CreateAccountCommand opens an account with an optional starting balance.
type CreateAccountCommand struct {
	UserID              string
	InitialBalanceMinor int64
}

// TopUpCommand adds funds to an existing account.
type TopUpCommand struct {
	UserID      string
	AmountMinor int64
}

// Service handles the account-facing commands and queries. Settlement
// itself lives in the OrderCreated consumer, not here.
type Service struct {
	Accounts ports.AccountRepository
	Clock    ports.Clock
	Logger   *slog.Logger
}

func (s Service) CreateAccount(ctx context.Context, cmd CreateAccountCommand) (entities.Account, error) {
	logger := ResolveLogger(s.Logger)
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return entities.Account{}, domainerrors.ErrUserRequired
	}
	if cmd.InitialBalanceMinor < 0 {
		return entities.Account{}, domainerrors.ErrInvalidAmount
	}

	now := s.Clock.Now().UTC()
	account := entities.Account{
		UserID:       userID,
		BalanceMinor: cmd.InitialBalanceMinor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Accounts.CreateAccount(ctx, account); err != nil {
		return entities.Account{}, err
	}

	logger.Info("account created",
		"event", "payments_account_created",
		"module", "payment-settlement/payments-service",
		"layer", "application",
		"user_id", userID,
		"balance_minor", cmd.InitialBalanceMinor,
	)
	return account, nil
}

func (s Service) TopUp(ctx context.Context, cmd TopUpCommand) (int64, error) {
	logger := ResolveLogger(s.Logger)
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return 0, domainerrors.ErrUserRequired
	}
	if cmd.AmountMinor <= 0 {
		return 0, domainerrors.ErrInvalidAmount
	}

	balance, err := s.Accounts.TopUp(ctx, userID, cmd.AmountMinor, s.Clock.Now().UTC())
	if err != nil {
		return 0, err
	}

	logger.Info("account topped up",
		"event", "payments_account_topped_up",
		"module", "payment-settlement/payments-service",
		"layer", "application",
		"user_id", userID,
		"amount_minor", cmd.AmountMinor,
		"balance_minor", balance,
	)
	return balance, nil
}

func (s Service) GetBalance(ctx context.Context, userID string) (entities.Account, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return entities.Account{}, domainerrors.ErrUserRequired
	}
	return s.Accounts.GetAccount(ctx, userID)
}
