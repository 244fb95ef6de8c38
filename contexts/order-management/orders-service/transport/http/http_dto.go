package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CreateOrderRequest struct {
	AmountMinor int64  `json:"amount_minor"`
	Description string `json:"description,omitempty"`
}

type OrderDTO struct {
	OrderID     string `json:"order_id"`
	AmountMinor int64  `json:"amount_minor"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type CreateOrderResponse struct {
	Status string   `json:"status"`
	Data   OrderDTO `json:"data"`
}

type GetOrderResponse struct {
	Status string   `json:"status"`
	Data   OrderDTO `json:"data"`
}

type ListOrdersResponse struct {
	Status string     `json:"status"`
	Data   []OrderDTO `json:"data"`
}
