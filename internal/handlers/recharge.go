package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/consultaplus/carteira/internal/apperrors"
	"github.com/consultaplus/carteira/internal/gateway"
	"github.com/consultaplus/carteira/internal/handlers/accountctx"
	"github.com/consultaplus/carteira/internal/handlers/render"
	"github.com/consultaplus/carteira/internal/ledgerapi"
	"github.com/consultaplus/carteira/internal/logger"
)

func handleCreateRecharge(billingService billingService, l logger.Logger) http.Handler {
	type request struct {
		Amount    decimal.Decimal `json:"amount" validate:"required"`
		PaymentID string          `json:"payment_id" validate:"required"`
	}

	type response struct {
		TransactionID string    `json:"transaction_id"`
		Status        string    `json:"status"`
		CreatedAt     time.Time `json:"created_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := accountctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		created, err := billingService.CreateRecharge(r.Context(), account.ID, req.Amount, req.PaymentID)

		switch {
		case err == nil:
			render.JSONWithStatus(w, response{
				TransactionID: created.ID.String(),
				Status:        created.Status,
				CreatedAt:     created.CreatedAt,
			}, http.StatusAccepted)
		case errors.Is(err, apperrors.ErrDuplicateOperation):
			render.ServiceError(w, "Payment already registered", http.StatusConflict)
		default:
			l.Error("Failed to create recharge", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

// handleRechargeCallback is the payment gateway's notification endpoint
func handleRechargeCallback(billingService billingService, l logger.Logger) http.Handler {
	type request struct {
		PaymentID string `json:"payment_id" validate:"required"`
		Status    string `json:"status" validate:"required,oneof=approved declined"`
	}

	type response struct {
		TransactionID string `json:"transaction_id"`
		Status        string `json:"status"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		settled, err := billingService.SettleRecharge(r.Context(), req.PaymentID, req.Status == gateway.StatusApproved)

		switch {
		case err == nil:
			render.JSON(w, response{TransactionID: settled.ID.String(), Status: settled.Status})
		case errors.Is(err, apperrors.ErrTransactionNotFound):
			render.ServiceError(w, "Unknown payment", http.StatusNotFound)
		case ledgerapi.IsTransport(err):
			render.ServiceError(w, "Settlement temporarily unavailable", http.StatusServiceUnavailable)
		default:
			l.Error("Failed to settle recharge", "error", err, "payment_id", req.PaymentID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
