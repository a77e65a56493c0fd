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

func handleRedeemCoupon(couponService couponService, l logger.Logger) http.Handler {
	type request struct {
		Code         string `json:"code" validate:"required"`
		InvocationID string `json:"invocation_id" validate:"required"`

		// Base for percentage coupons; ignored for fixed ones
		BaseAmount decimal.Decimal `json:"base_amount,omitempty"`
	}

	type response struct {
		TransactionID string  `json:"transaction_id"`
		Amount        float64 `json:"amount"`
		Pool          string  `json:"pool"`
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

		created, err := couponService.Redeem(r.Context(), req.Code, account.ID, req.InvocationID, req.BaseAmount)

		switch {
		case err == nil:
			amount, _ := created.Amount.Float64()
			render.JSON(w, response{
				TransactionID: created.ID.String(),
				Amount:        amount,
				Pool:          created.Pool,
			})
		case errors.Is(err, apperrors.ErrCouponNotFound):
			render.ServiceError(w, "Coupon not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrCouponExpired):
			render.ServiceError(w, "Coupon expired", http.StatusGone)
		case errors.Is(err, apperrors.ErrCouponExhausted):
			render.ServiceError(w, "Coupon usage cap reached", http.StatusConflict)
		case errors.Is(err, apperrors.ErrCouponNotAllowed):
			render.ServiceError(w, "Coupon not available for this account", http.StatusForbidden)
		default:
			l.Error("Failed to redeem coupon", "error", err, "code", req.Code)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
