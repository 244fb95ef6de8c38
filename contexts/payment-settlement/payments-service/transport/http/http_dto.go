package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CreateAccountRequest struct {
	InitialBalanceMinor int64 `json:"initial_balance_minor,omitempty"`
}

type TopUpRequest struct {
	AmountMinor int64 `json:"amount_minor"`
}

type AccountDTO struct {
	UserID       string `json:"user_id"`
	BalanceMinor int64  `json:"balance_minor"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type CreateAccountResponse struct {
	Status string     `json:"status"`
	Data   AccountDTO `json:"data"`
}

type BalanceDTO struct {
	UserID       string `json:"user_id"`
	BalanceMinor int64  `json:"balance_minor"`
}

type TopUpResponse struct {
	Status string     `json:"status"`
	Data   BalanceDTO `json:"data"`
}

type GetBalanceResponse struct {
	Status string     `json:"status"`
	Data   BalanceDTO `json:"data"`
}
