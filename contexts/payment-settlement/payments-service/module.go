package paymentsservice

import (
	"log/slog"
	"time"

	httpadapter "checkout/contexts/payment-settlement/payments-service/adapters/http"
	"checkout/contexts/payment-settlement/payments-service/adapters/memory"
	"checkout/contexts/payment-settlement/payments-service/application"
	"checkout/contexts/payment-settlement/payments-service/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Store   *memory.Store
}

type Dependencies struct {
	Accounts    ports.AccountRepository
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Logger      *slog.Logger
}

func NewModule(deps Dependencies) Module {
	service := application.Service{
		Accounts: deps.Accounts,
		Clock:    deps.Clock,
		Logger:   deps.Logger,
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
		Accounts:    store,
		Clock:       systemClock{},
		IDGenerator: store,
		Logger:      logger,
	})
	module.Store = store
	return module
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
