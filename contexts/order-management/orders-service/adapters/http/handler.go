package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"checkout/contexts/order-management/orders-service/application"
	"checkout/contexts/order-management/orders-service/domain/entities"
	httptransport "checkout/contexts/order-management/orders-service/transport/http"
)

type Handler struct {
	Service application.Service
	Logger  *slog.Logger
}

func (h Handler) CreateOrderHandler(
	ctx context.Context,
	userID string,
	correlationID string,
	req httptransport.CreateOrderRequest,
) (httptransport.CreateOrderResponse, error) {
	order, err := h.Service.CreateOrder(ctx, application.CreateOrderCommand{
		UserID:        userID,
		AmountMinor:   req.AmountMinor,
		Description:   req.Description,
		CorrelationID: correlationID,
	})
	if err != nil {
		return httptransport.CreateOrderResponse{}, err
	}
	return httptransport.CreateOrderResponse{
		Status: "success",
		Data:   toDTO(order),
	}, nil
}

func (h Handler) GetOrderHandler(ctx context.Context, userID, orderID string) (httptransport.GetOrderResponse, error) {
	order, err := h.Service.GetOrder(ctx, userID, orderID)
	if err != nil {
		return httptransport.GetOrderResponse{}, err
	}
	return httptransport.GetOrderResponse{
		Status: "success",
		Data:   toDTO(order),
	}, nil
}

func (h Handler) ListOrdersHandler(ctx context.Context, userID string) (httptransport.ListOrdersResponse, error) {
	orders, err := h.Service.ListOrders(ctx, userID)
	if err != nil {
		return httptransport.ListOrdersResponse{}, err
	}
	resp := httptransport.ListOrdersResponse{
		Status: "success",
		Data:   make([]httptransport.OrderDTO, 0, len(orders)),
	}
	for _, order := range orders {
		resp.Data = append(resp.Data, toDTO(order))
	}
	return resp, nil
}

func toDTO(order entities.Order) httptransport.OrderDTO {
	return httptransport.OrderDTO{
		OrderID:     order.OrderID,
		AmountMinor: order.AmountMinor,
		Description: order.Description,
		Status:      string(order.Status),
		CreatedAt:   order.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   order.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
