package ordersservice

import (
	"log/slog"
	"time"

	httpadapter "checkout/contexts/order-management/orders-service/adapters/http"
	"checkout/contexts/order-management/orders-service/adapters/memory"
	"checkout/contexts/order-management/orders-service/application"
	"checkout/contexts/order-management/orders-service/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Store   *memory.Store
}

type Dependencies struct {
	Orders      ports.OrderRepository
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Logger      *slog.Logger
}

func NewModule(deps Dependencies) Module {
	service := application.Service{
		Orders: deps.Orders,
		Clock:  deps.Clock,
		IDGen:  deps.IDGenerator,
		Logger: deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Service: service,
			Logger:  deps.Logger,
		},
	}
}

// NewInMemoryModule wires the module against the memory store; used by
// tests and local runs without Postgres.
func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore(nil)
	module := NewModule(Dependencies{
		Orders:      store,
		Clock:       systemClock{},
		IDGenerator: store,
		Logger:      logger,
	})
	module.Store = store
	return module
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
