package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/consultaplus/carteira/internal/apperrors"
	"github.com/consultaplus/carteira/internal/handlers/render"
	"github.com/consultaplus/carteira/internal/logger"
)

func handleRegister(accountService accountService, l logger.Logger) http.Handler {
	type request struct {
		Email        string `json:"email" validate:"required,email"`
		Password     string `json:"password" validate:"required,min=8"`
		ReferralCode string `json:"referral_code,omitempty"`
	}

	type response struct {
		AccessToken  string    `json:"access_token"`
		ExpiresAt    time.Time `json:"expires_at"`
		ReferralCode string    `json:"referral_code"`
		PlanTier     string    `json:"plan_tier"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		created, token, err := accountService.Register(r.Context(), req.Email, req.Password, req.ReferralCode)

		switch {
		case err == nil:
			render.JSON(w, response{
				AccessToken:  token.Value,
				ExpiresAt:    token.ExpiresAt,
				ReferralCode: created.ReferralCode,
				PlanTier:     created.PlanTier,
			})
		case errors.Is(err, apperrors.ErrAccountAlreadyExists):
			render.ServiceError(w, "Account already exists", http.StatusConflict)
		case errors.Is(err, apperrors.ErrReferralCodeInvalid):
			render.ServiceError(w, "Referral code invalid", http.StatusUnprocessableEntity)
		case errors.Is(err, apperrors.ErrSelfReferral):
			render.ServiceError(w, "Referral code invalid", http.StatusUnprocessableEntity)
		default:
			l.Error("Failed to register account", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleLogin(accountService accountService, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	type response struct {
		AccessToken string    `json:"access_token"`
		ExpiresAt   time.Time `json:"expires_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		_, token, err := accountService.Login(r.Context(), req.Email, req.Password)

		switch {
		case err == nil:
			render.JSON(w, response{AccessToken: token.Value, ExpiresAt: token.ExpiresAt})
		case errors.Is(err, apperrors.ErrAccountNotFound):
			render.ServiceError(w, "Invalid email or password", http.StatusUnauthorized)
		default:
			l.Error("Failed to login", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
