package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"checkout/internal/shared/outbox"
)

type messageModel struct {
	OutboxID      string     `gorm:"column:outbox_id;primaryKey"`
	MessageID     string     `gorm:"column:message_id;uniqueIndex:outbox_messages_message_id_key"`
	MessageType   string     `gorm:"column:message_type"`
	Payload       []byte     `gorm:"column:payload;type:jsonb"`
	OccurredAt    time.Time  `gorm:"column:occurred_at;index"`
	SentAt        *time.Time `gorm:"column:sent_at"`
	LockedBy      *string    `gorm:"column:locked_by"`
	LockedUntil   *time.Time `gorm:"column:locked_until"`
	AttemptCount  int        `gorm:"column:attempt_count"`
	NextAttemptAt *time.Time `gorm:"column:next_attempt_at"`
	LastError     *string    `gorm:"column:last_error"`
	ParkedAt      *time.Time `gorm:"column:parked_at"`
}

func (messageModel) TableName() string {
	return "outbox_messages"
}

type receiptModel struct {
	InboxID     string    `gorm:"column:inbox_id;primaryKey"`
	MessageID   string    `gorm:"column:message_id;uniqueIndex:inbox_messages_message_consumer_key"`
	Consumer    string    `gorm:"column:consumer;uniqueIndex:inbox_messages_message_consumer_key"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

func (receiptModel) TableName() string {
	return "inbox_messages"
}

// MigrateOutbox creates the outbox table and its indexes.
func MigrateOutbox(db *gorm.DB) error {
	return db.AutoMigrate(&messageModel{})
}

// MigrateInbox creates the inbox table and its unique receipt constraint.
func MigrateInbox(db *gorm.DB) error {
	return db.AutoMigrate(&receiptModel{})
}

// InsertMessage stages an outbox row inside the caller's transaction. This
// is the write half of the transactional-writer contract: the caller passes
// the same tx that carries its domain mutation.
func InsertMessage(tx *gorm.DB, msg outbox.Message) error {
	row := messageModel{
		OutboxID:      msg.OutboxID,
		MessageID:     msg.MessageID,
		MessageType:   msg.MessageType,
		Payload:       msg.Payload,
		OccurredAt:    msg.OccurredAt.UTC(),
		AttemptCount:  msg.AttemptCount,
		NextAttemptAt: msg.NextAttemptAt,
	}
	return tx.Create(&row).Error
}

// InsertReceipt records an inbox receipt inside the caller's transaction.
// A (message_id, consumer) collision maps to outbox.ErrDuplicateReceipt.
func InsertReceipt(tx *gorm.DB, receipt outbox.Receipt) error {
	row := receiptModel{
		InboxID:     receipt.InboxID,
		MessageID:   receipt.MessageID,
		Consumer:    receipt.Consumer,
		ProcessedAt: receipt.ProcessedAt.UTC(),
	}
	if err := tx.Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return outbox.ErrDuplicateReceipt
		}
		return err
	}
	return nil
}

// Store implements outbox.Store on Postgres. The reserve step relies on
// FOR UPDATE SKIP LOCKED so concurrent dispatcher instances never contend.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewStore(db *gorm.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

func (s *Store) Reserve(ctx context.Context, lockedBy string, batchSize int, leaseUntil, now time.Time) ([]outbox.Message, error) {
	var rows []messageModel

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Raw(`
SELECT *
FROM outbox_messages
WHERE sent_at IS NULL
  AND parked_at IS NULL
  AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
  AND (locked_until IS NULL OR locked_until < ?)
ORDER BY occurred_at
LIMIT ?
FOR UPDATE SKIP LOCKED`, now, now, batchSize).Scan(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]string, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.OutboxID)
		}
		// Reservation is deliberately the only work in this transaction
		// so the lease write never spans network publishing.
		return tx.Model(&messageModel{}).
			Where("outbox_id IN ?", ids).
			Updates(map[string]any{
				"locked_by":     lockedBy,
				"locked_until":  leaseUntil,
				"attempt_count": gorm.Expr("attempt_count + 1"),
			}).Error
	})
	if err != nil {
		return nil, err
	}

	reserved := make([]outbox.Message, 0, len(rows))
	for _, row := range rows {
		msg := row.toMessage()
		msg.LockedBy = lockedBy
		lease := leaseUntil
		msg.LockedUntil = &lease
		msg.AttemptCount++
		reserved = append(reserved, msg)
	}
	return reserved, nil
}

func (s *Store) MarkSent(ctx context.Context, outboxID string, sentAt time.Time) error {
	return s.db.WithContext(ctx).Model(&messageModel{}).
		Where("outbox_id = ?", outboxID).
		Updates(map[string]any{
			"sent_at":         sentAt.UTC(),
			"locked_by":       nil,
			"locked_until":    nil,
			"next_attempt_at": nil,
			"last_error":      nil,
		}).Error
}

func (s *Store) ScheduleRetry(ctx context.Context, outboxID string, lastError string, nextAttemptAt time.Time) error {
	return s.db.WithContext(ctx).Model(&messageModel{}).
		Where("outbox_id = ?", outboxID).
		Updates(map[string]any{
			"locked_by":       nil,
			"locked_until":    nil,
			"next_attempt_at": nextAttemptAt.UTC(),
			"last_error":      lastError,
		}).Error
}

func (s *Store) Park(ctx context.Context, outboxID string, lastError string, parkedAt time.Time) error {
	return s.db.WithContext(ctx).Model(&messageModel{}).
		Where("outbox_id = ?", outboxID).
		Updates(map[string]any{
			"locked_by":    nil,
			"locked_until": nil,
			"last_error":   lastError,
			"parked_at":    parkedAt.UTC(),
		}).Error
}

func (m messageModel) toMessage() outbox.Message {
	msg := outbox.Message{
		OutboxID:      m.OutboxID,
		MessageID:     m.MessageID,
		MessageType:   m.MessageType,
		Payload:       m.Payload,
		OccurredAt:    m.OccurredAt,
		SentAt:        m.SentAt,
		LockedUntil:   m.LockedUntil,
		AttemptCount:  m.AttemptCount,
		NextAttemptAt: m.NextAttemptAt,
		ParkedAt:      m.ParkedAt,
	}
	if m.LockedBy != nil {
		msg.LockedBy = *m.LockedBy
	}
	if m.LastError != nil {
		msg.LastError = *m.LastError
	}
	return msg
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
