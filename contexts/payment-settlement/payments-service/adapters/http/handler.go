package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"checkout/contexts/payment-settlement/payments-service/application"
	"checkout/contexts/payment-settlement/payments-service/domain/entities"
	httptransport "checkout/contexts/payment-settlement/payments-service/transport/http"
)

type Handler struct {
	Service application.Service
	Logger  *slog.Logger
}

func (h Handler) CreateAccountHandler(
	ctx context.Context,
	userID string,
	req httptransport.CreateAccountRequest,
) (httptransport.CreateAccountResponse, error) {
	account, err := h.Service.CreateAccount(ctx, application.CreateAccountCommand{
		UserID:              userID,
		InitialBalanceMinor: req.InitialBalanceMinor,
	})
	if err != nil {
		return httptransport.CreateAccountResponse{}, err
	}
	return httptransport.CreateAccountResponse{
		Status: "success",
		Data:   toDTO(account),
	}, nil
}

func (h Handler) TopUpHandler(
	ctx context.Context,
	userID string,
	req httptransport.TopUpRequest,
) (httptransport.TopUpResponse, error) {
	balance, err := h.Service.TopUp(ctx, application.TopUpCommand{
		UserID:      userID,
		AmountMinor: req.AmountMinor,
	})
	if err != nil {
		return httptransport.TopUpResponse{}, err
	}
	return httptransport.TopUpResponse{
		Status: "success",
		Data: httptransport.BalanceDTO{
			UserID:       userID,
			BalanceMinor: balance,
		},
	}, nil
}

func (h Handler) GetBalanceHandler(ctx context.Context, userID string) (httptransport.GetBalanceResponse, error) {
	account, err := h.Service.GetBalance(ctx, userID)
	if err != nil {
		return httptransport.GetBalanceResponse{}, err
	}
	return httptransport.GetBalanceResponse{
		Status: "success",
		Data: httptransport.BalanceDTO{
			UserID:       account.UserID,
			BalanceMinor: account.BalanceMinor,
		},
	}, nil
}

func toDTO(account entities.Account) httptransport.AccountDTO {
	return httptransport.AccountDTO{
		UserID:       account.UserID,
		BalanceMinor: account.BalanceMinor,
		CreatedAt:    account.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    account.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
