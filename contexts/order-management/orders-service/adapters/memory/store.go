package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"checkout/contexts/order-management/orders-service/domain/entities"
	domainerrors "checkout/contexts/order-management/orders-service/domain/errors"
	"checkout/internal/shared/outbox"
	outboxmemory "checkout/internal/shared/outbox/memory"
)

// Store is the in-memory order repository used by tests and in-memory
// modules. Outbox rows land in the shared outbox memory store so a
// dispatcher can drain them like in production.
type Store struct {
	mu     sync.RWMutex
	orders map[string]entities.Order
	outbox *outboxmemory.Store
}

func NewStore(outboxStore *outboxmemory.Store) *Store {
	if outboxStore == nil {
		outboxStore = outboxmemory.NewStore()
	}
	return &Store{
		orders: make(map[string]entities.Order),
		outbox: outboxStore,
	}
}

// Outbox exposes the backing outbox store for dispatcher wiring.
func (s *Store) Outbox() *outboxmemory.Store {
	return s.outbox
}

func (s *Store) CreateOrderWithOutbox(_ context.Context, order entities.Order, msg outbox.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.OrderID] = order
	s.outbox.Append(msg)
	return nil
}

func (s *Store) GetOrder(_ context.Context, userID, orderID string) (entities.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[strings.TrimSpace(orderID)]
	if !ok || order.UserID != strings.TrimSpace(userID) {
		return entities.Order{}, domainerrors.ErrOrderNotFound
	}
	return order, nil
}

func (s *Store) ListOrders(_ context.Context, userID string) ([]entities.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID = strings.TrimSpace(userID)
	orders := make([]entities.Order, 0)
	for _, order := range s.orders {
		if order.UserID == userID {
			orders = append(orders, order)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func (s *Store) ApplyPaymentResult(_ context.Context, orderID string, status entities.OrderStatus, updatedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[strings.TrimSpace(orderID)]
	if !ok {
		return false, domainerrors.ErrOrderNotFound
	}
	if order.Status != entities.OrderStatusNew {
		return false, nil
	}
	order.Status = status
	order.UpdatedAt = updatedAt.UTC()
	s.orders[order.OrderID] = order
	return true, nil
}

// NewID satisfies ports.IDGenerator so the store can double as test wiring.
func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}
