package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"checkout/contexts/order-management/orders-service/domain/entities"
	domainerrors "checkout/contexts/order-management/orders-service/domain/errors"
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

// Migrate creates the orders table plus the outbox table this service owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&orderModel{}); err != nil {
		return err
	}
	return outboxpg.MigrateOutbox(db)
}

func (r *Repository) CreateOrderWithOutbox(ctx context.Context, order entities.Order, msg outbox.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := orderModelFromEntity(order)
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return outboxpg.InsertMessage(tx, msg)
	})
}

func (r *Repository) GetOrder(ctx context.Context, userID, orderID string) (entities.Order, error) {
	var row orderModel
	err := r.db.WithContext(ctx).
		Where("order_id = ?", strings.TrimSpace(orderID)).
		Where("user_id = ?", strings.TrimSpace(userID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Order{}, domainerrors.ErrOrderNotFound
		}
		return entities.Order{}, r.logError("orders_repo_get_failed", err, "order_id", strings.TrimSpace(orderID))
	}
	return row.toEntity(), nil
}

func (r *Repository) ListOrders(ctx context.Context, userID string) ([]entities.Order, error) {
	var rows []orderModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("orders_repo_list_failed", err, "user_id", strings.TrimSpace(userID))
	}
	orders := make([]entities.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, row.toEntity())
	}
	return orders, nil
}

// ApplyPaymentResult is a conditional update guarded by status = 'new', so
// a redelivered or late result can never overwrite a terminal status.
func (r *Repository) ApplyPaymentResult(ctx context.Context, orderID string, status entities.OrderStatus, updatedAt time.Time) (bool, error) {
	orderID = strings.TrimSpace(orderID)
	result := r.db.WithContext(ctx).
		Model(&orderModel{}).
		Where("order_id = ?", orderID).
		Where("status = ?", string(entities.OrderStatusNew)).
		Updates(map[string]any{
			"status":     string(status),
			"updated_at": updatedAt.UTC(),
		})
	if result.Error != nil {
		return false, r.logError("orders_repo_apply_result_failed", result.Error, "order_id", orderID)
	}
	if result.RowsAffected == 1 {
		return true, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&orderModel{}).
		Where("order_id = ?", orderID).
		Count(&count).Error; err != nil {
		return false, r.logError("orders_repo_apply_result_lookup_failed", err, "order_id", orderID)
	}
	if count == 0 {
		return false, domainerrors.ErrOrderNotFound
	}
	return false, nil
}

func (r *Repository) logError(event string, err error, args ...any) error {
	fields := append([]any{
		"event", event,
		"module", "order-management/orders-service",
		"layer", "adapter",
		"error", err.Error(),
	}, args...)
	r.logger.Error("orders repository operation failed", fields...)
	return err
}

type orderModel struct {
	OrderID     string    `gorm:"column:order_id;primaryKey"`
	UserID      string    `gorm:"column:user_id;index"`
	AmountMinor int64     `gorm:"column:amount_minor"`
	Description string    `gorm:"column:description"`
	Status      string    `gorm:"column:status"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (orderModel) TableName() string {
	return "orders"
}

func orderModelFromEntity(order entities.Order) orderModel {
	return orderModel{
		OrderID:     order.OrderID,
		UserID:      order.UserID,
		AmountMinor: order.AmountMinor,
		Description: order.Description,
		Status:      string(order.Status),
		CreatedAt:   order.CreatedAt.UTC(),
		UpdatedAt:   order.UpdatedAt.UTC(),
	}
}

func (m orderModel) toEntity() entities.Order {
	return entities.Order{
		OrderID:     m.OrderID,
		UserID:      m.UserID,
		AmountMinor: m.AmountMinor,
		Description: m.Description,
		Status:      entities.OrderStatus(m.Status),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
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
