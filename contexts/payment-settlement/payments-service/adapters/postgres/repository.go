package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"checkout/contexts/payment-settlement/payments-service/domain/entities"
	domainerrors "checkout/contexts/payment-settlement/payments-service/domain/errors"
	"checkout/contexts/payment-settlement/payments-service/ports"
	"checkout/internal/shared/events"
	"checkout/internal/shared/outbox"
	outboxpg "checkout/internal/shared/outbox/postgres"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger}
}

// Migrate creates the account and settlement tables plus the inbox/outbox
// tables this service owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&accountModel{}, &paymentTransactionModel{}); err != nil {
		return err
	}
	if err := outboxpg.MigrateInbox(db); err != nil {
		return err
	}
	return outboxpg.MigrateOutbox(db)
}

func (r *Repository) CreateAccount(ctx context.Context, account entities.Account) error {
	row := accountModelFromEntity(account)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrAccountExists
		}
		return r.logError("payments_repo_create_account_failed", err, "user_id", account.UserID)
	}
	return nil
}

func (r *Repository) GetAccount(ctx context.Context, userID string) (entities.Account, error) {
	var row accountModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", strings.TrimSpace(userID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Account{}, domainerrors.ErrAccountNotFound
		}
		return entities.Account{}, r.logError("payments_repo_get_account_failed", err, "user_id", strings.TrimSpace(userID))
	}
	return row.toEntity(), nil
}

func (r *Repository) TopUp(ctx context.Context, userID string, amountMinor int64, updatedAt time.Time) (int64, error) {
	userID = strings.TrimSpace(userID)
	var balance int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&accountModel{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{
				"balance_minor": gorm.Expr("balance_minor + ?", amountMinor),
				"updated_at":    updatedAt.UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domainerrors.ErrAccountNotFound
		}
		var row accountModel
		if err := tx.Where("user_id = ?", userID).First(&row).Error; err != nil {
			return err
		}
		balance = row.BalanceMinor
		return nil
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrAccountNotFound) {
			return 0, err
		}
		return 0, r.logError("payments_repo_topup_failed", err, "user_id", userID)
	}
	return balance, nil
}

// RecordSettlement is the idempotent-consumer transaction. The inbox receipt
// admits the message, the conditional debit decides the outcome, and the
// result event's outbox row rides the same commit. Any error rolls all of it
// back, including the receipt, so a redelivery gets a clean retry.
func (r *Repository) RecordSettlement(ctx context.Context, cmd ports.SettlementCommand, enqueue ports.EnqueueFunc) (ports.SettlementResult, error) {
	var result ports.SettlementResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		receipt := outbox.Receipt{
			InboxID:     cmd.ReceiptID,
			MessageID:   cmd.MessageID,
			Consumer:    cmd.Consumer,
			ProcessedAt: cmd.Now.UTC(),
		}
		if err := outboxpg.InsertReceipt(tx, receipt); err != nil {
			// A duplicate receipt aborts the postgres transaction, so the
			// replay verdict has to travel out as an error.
			return err
		}

		var existing paymentTransactionModel
		err := tx.Where("order_id = ?", cmd.OrderID).First(&existing).Error
		switch {
		case err == nil:
			// New message id, already-settled order: the first delivery's
			// receipt was lost or raced. Re-publish the stored outcome
			// without touching the balance.
			result.Reused = true
			result.Transaction = existing.toEntity()
			msg, err := enqueue(result.Transaction)
			if err != nil {
				return err
			}
			return outboxpg.InsertMessage(tx, msg)
		case errors.Is(err, gorm.ErrRecordNotFound):
			// First settlement for this order, fall through.
		default:
			return err
		}

		transaction := entities.PaymentTransaction{
			TransactionID: cmd.TransactionID,
			OrderID:       cmd.OrderID,
			UserID:        cmd.UserID,
			AmountMinor:   cmd.AmountMinor,
			Status:        entities.TransactionSucceeded,
			CreatedAt:     cmd.Now.UTC(),
		}

		debit := tx.Model(&accountModel{}).
			Where("user_id = ?", cmd.UserID).
			Where("balance_minor >= ?", cmd.AmountMinor).
			Updates(map[string]any{
				"balance_minor": gorm.Expr("balance_minor - ?", cmd.AmountMinor),
				"updated_at":    cmd.Now.UTC(),
			})
		if debit.Error != nil {
			return debit.Error
		}
		if debit.RowsAffected == 0 {
			transaction.Status = entities.TransactionFailed
			var count int64
			if err := tx.Model(&accountModel{}).
				Where("user_id = ?", cmd.UserID).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				transaction.FailureReason = events.ReasonAccountNotFound
			} else {
				transaction.FailureReason = events.ReasonInsufficientFunds
			}
		}

		row := paymentTransactionModelFromEntity(transaction)
		if err := tx.Create(&row).Error; err != nil {
			// A unique violation on order_id means another consumer settled
			// this order between our lookup and insert. Roll back and let
			// the redelivery take the reuse path.
			return err
		}

		result.Transaction = transaction
		msg, err := enqueue(transaction)
		if err != nil {
			return err
		}
		return outboxpg.InsertMessage(tx, msg)
	})
	if err != nil {
		if errors.Is(err, outbox.ErrDuplicateReceipt) {
			return ports.SettlementResult{Replayed: true}, nil
		}
		return ports.SettlementResult{}, r.logError("payments_repo_settlement_failed", err,
			"order_id", cmd.OrderID,
			"message_id", cmd.MessageID,
		)
	}
	return result, nil
}

func (r *Repository) logError(event string, err error, args ...any) error {
	fields := append([]any{
		"event", event,
		"module", "payment-settlement/payments-service",
		"layer", "adapter",
		"error", err.Error(),
	}, args...)
	r.logger.Error("payments repository operation failed", fields...)
	return err
}

type accountModel struct {
	UserID       string    `gorm:"column:user_id;primaryKey"`
	BalanceMinor int64     `gorm:"column:balance_minor"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (accountModel) TableName() string {
	return "accounts"
}

func accountModelFromEntity(account entities.Account) accountModel {
	return accountModel{
		UserID:       account.UserID,
		BalanceMinor: account.BalanceMinor,
		CreatedAt:    account.CreatedAt.UTC(),
		UpdatedAt:    account.UpdatedAt.UTC(),
	}
}

func (m accountModel) toEntity() entities.Account {
	return entities.Account{
		UserID:       m.UserID,
		BalanceMinor: m.BalanceMinor,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

type paymentTransactionModel struct {
	TransactionID string    `gorm:"column:transaction_id;primaryKey"`
	OrderID       string    `gorm:"column:order_id;uniqueIndex:payment_transactions_order_id_key"`
	UserID        string    `gorm:"column:user_id;index"`
	AmountMinor   int64     `gorm:"column:amount_minor"`
	Status        string    `gorm:"column:status"`
	FailureReason string    `gorm:"column:failure_reason"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (paymentTransactionModel) TableName() string {
	return "payment_transactions"
}

func paymentTransactionModelFromEntity(transaction entities.PaymentTransaction) paymentTransactionModel {
	return paymentTransactionModel{
		TransactionID: transaction.TransactionID,
		OrderID:       transaction.OrderID,
		UserID:        transaction.UserID,
		AmountMinor:   transaction.AmountMinor,
		Status:        string(transaction.Status),
		FailureReason: string(transaction.FailureReason),
		CreatedAt:     transaction.CreatedAt.UTC(),
	}
}

func (m paymentTransactionModel) toEntity() entities.PaymentTransaction {
	return entities.PaymentTransaction{
		TransactionID: m.TransactionID,
		OrderID:       m.OrderID,
		UserID:        m.UserID,
		AmountMinor:   m.AmountMinor,
		Status:        entities.TransactionStatus(m.Status),
		FailureReason: events.FailureReason(m.FailureReason),
		CreatedAt:     m.CreatedAt,
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// SystemClock satisfies ports.Clock with wall-clock time.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// UUIDGenerator satisfies ports.IDGenerator with random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}
