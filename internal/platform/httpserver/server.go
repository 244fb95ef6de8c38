package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	ordersservice "checkout/contexts/order-management/orders-service"
	orderserrors "checkout/contexts/order-management/orders-service/domain/errors"
	ordershttp "checkout/contexts/order-management/orders-service/transport/http"
	paymentsservice "checkout/contexts/payment-settlement/payments-service"
	paymentserrors "checkout/contexts/payment-settlement/payments-service/domain/errors"
	paymentshttp "checkout/contexts/payment-settlement/payments-service/transport/http"

	_ "checkout/internal/platform/httpserver/docs"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Server struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	addr     string
	orders   ordersservice.Module
	payments paymentsservice.Module
}

func New(
	orders ordersservice.Module,
	payments paymentsservice.Module,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:      http.NewServeMux(),
		logger:   logger,
		addr:     addr,
		orders:   orders,
		payments: payments,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

// Handler exposes the mux for httptest wiring.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /orders", s.handleCreateOrder)
	s.mux.HandleFunc("GET /orders", s.handleListOrders)
	s.mux.HandleFunc("GET /orders/{order_id}", s.handleGetOrder)

	s.mux.HandleFunc("POST /accounts", s.handleCreateAccount)
	s.mux.HandleFunc("GET /accounts/balance", s.handleGetBalance)
	s.mux.HandleFunc("POST /accounts/topup", s.handleTopUp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeOrdersError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	var req ordershttp.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeOrdersError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.orders.Handler.CreateOrderHandler(r.Context(), userID, r.Header.Get("X-Correlation-Id"), req)
	if err != nil {
		writeOrdersDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeOrdersError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	resp, err := s.orders.Handler.GetOrderHandler(r.Context(), userID, r.PathValue("order_id"))
	if err != nil {
		writeOrdersDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeOrdersError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	resp, err := s.orders.Handler.ListOrdersHandler(r.Context(), userID)
	if err != nil {
		writeOrdersDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writePaymentsError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	var req paymentshttp.CreateAccountRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writePaymentsError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
			return
		}
	}

	resp, err := s.payments.Handler.CreateAccountHandler(r.Context(), userID, req)
	if err != nil {
		writePaymentsDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writePaymentsError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	resp, err := s.payments.Handler.GetBalanceHandler(r.Context(), userID)
	if err != nil {
		writePaymentsDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTopUp(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writePaymentsError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	var req paymentshttp.TopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writePaymentsError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.payments.Handler.TopUpHandler(r.Context(), userID, req)
	if err != nil {
		writePaymentsDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeOrdersDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orderserrors.ErrOrderNotFound):
		writeOrdersError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, orderserrors.ErrUserRequired):
		writeOrdersError(w, http.StatusUnauthorized, "missing_user", err.Error())
	case errors.Is(err, orderserrors.ErrInvalidAmount):
		writeOrdersError(w, http.StatusBadRequest, "invalid_amount", err.Error())
	case errors.Is(err, orderserrors.ErrAmountTooLarge):
		writeOrdersError(w, http.StatusUnprocessableEntity, "amount_too_large", err.Error())
	default:
		writeOrdersError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writePaymentsDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, paymentserrors.ErrAccountNotFound):
		writePaymentsError(w, http.StatusNotFound, "account_not_found", err.Error())
	case errors.Is(err, paymentserrors.ErrAccountExists):
		writePaymentsError(w, http.StatusConflict, "account_exists", err.Error())
	case errors.Is(err, paymentserrors.ErrUserRequired):
		writePaymentsError(w, http.StatusUnauthorized, "missing_user", err.Error())
	case errors.Is(err, paymentserrors.ErrInvalidAmount):
		writePaymentsError(w, http.StatusBadRequest, "invalid_amount", err.Error())
	default:
		writePaymentsError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeOrdersError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ordershttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writePaymentsError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, paymentshttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
