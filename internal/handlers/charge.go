package handlers

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/consultaplus/carteira/internal/apperrors"
	"github.com/consultaplus/carteira/internal/handlers/accountctx"
	"github.com/consultaplus/carteira/internal/handlers/render"
	"github.com/consultaplus/carteira/internal/logger"
)

func handleCharge(billingService billingService, l logger.Logger) http.Handler {
	type request struct {
		// Document the consultation is about, CPF or CNPJ digits
		Document    string          `json:"document" validate:"required,cpfcnpj"`
		Price       decimal.Decimal `json:"price" validate:"required"`
		Description string          `json:"description"`
	}

	type part struct {
		Pool   string  `json:"pool"`
		Amount float64 `json:"amount"`
	}

	type response struct {
		ListPrice       float64 `json:"list_price"`
		FinalPrice      float64 `json:"final_price"`
		DiscountPercent float64 `json:"discount_percent"`
		Parts           []part  `json:"parts"`
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

		description := req.Description
		if description == "" {
			description = "Consulta de documento"
		}

		result, err := billingService.Charge(r.Context(), account, req.Price, req.Document, description)

		switch {
		case err == nil:
			parts := make([]part, 0, len(result.Transactions))
			for _, t := range result.Transactions {
				amount, _ := t.Amount.Neg().Float64()
				parts = append(parts, part{Pool: t.Pool, Amount: amount})
			}

			listPrice, _ := result.ListPrice.Float64()
			finalPrice, _ := result.FinalPrice.Float64()
			percent, _ := result.DiscountPercent.Float64()
			render.JSON(w, response{
				ListPrice:       listPrice,
				FinalPrice:      finalPrice,
				DiscountPercent: percent,
				Parts:           parts,
			})
		case errors.Is(err, apperrors.ErrInsufficientFunds):
			renderInsufficientFunds(w, err)
		case errors.Is(err, apperrors.ErrStaleBalance):
			render.ServiceError(w, "Balance unavailable, try again later", http.StatusServiceUnavailable)
		case errors.Is(err, apperrors.ErrPriceInvalid):
			render.ServiceError(w, "Invalid price", http.StatusUnprocessableEntity)
		default:
			l.Error("Failed to charge", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handlePurchasePlan(billingService billingService, l logger.Logger) http.Handler {
	type request struct {
		Tier string `json:"tier" validate:"required"`
	}

	type response struct {
		PlanTier string `json:"plan_tier"`
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

		updated, err := billingService.PurchasePlan(r.Context(), account, req.Tier)

		switch {
		case err == nil:
			render.JSON(w, response{PlanTier: updated.PlanTier})
		case errors.Is(err, apperrors.ErrPlanUnknown):
			render.ServiceError(w, "Unknown plan", http.StatusUnprocessableEntity)
		case errors.Is(err, apperrors.ErrInsufficientFunds):
			renderInsufficientFunds(w, err)
		case errors.Is(err, apperrors.ErrStaleBalance):
			render.ServiceError(w, "Balance unavailable, try again later", http.StatusServiceUnavailable)
		default:
			l.Error("Failed to purchase plan", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

// renderInsufficientFunds reports the shortfall so the client can offer a
// recharge for the exact missing amount
func renderInsufficientFunds(w http.ResponseWriter, err error) {
	var insufficientErr *apperrors.InsufficientFundsError
	if !errors.As(err, &insufficientErr) {
		render.ServiceError(w, "Insufficient funds", http.StatusPaymentRequired)
		return
	}

	requested, _ := insufficientErr.Requested.Float64()
	available, _ := insufficientErr.Available.Float64()
	shortfall, _ := insufficientErr.Shortfall().Float64()

	render.JSONWithStatus(w, map[string]any{
		"error":     "insufficient_funds",
		"requested": requested,
		"available": available,
		"shortfall": shortfall,
	}, http.StatusPaymentRequired)
}
