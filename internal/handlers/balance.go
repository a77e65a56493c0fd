package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/consultaplus/carteira/internal/apperrors"
	"github.com/consultaplus/carteira/internal/handlers/accountctx"
	"github.com/consultaplus/carteira/internal/handlers/render"
	"github.com/consultaplus/carteira/internal/logger"
)

func handleBalance(balances balanceReader, l logger.Logger) http.Handler {
	type response struct {
		Wallet    float64   `json:"wallet"`
		Plan      float64   `json:"plan"`
		Available float64   `json:"available"`
		Stale     bool      `json:"stale"`
		FetchedAt time.Time `json:"fetched_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := accountctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		snapshot, err := balances.Get(r.Context(), account.ID)

		switch {
		case err == nil:
			wallet, _ := snapshot.Wallet.Float64()
			plan, _ := snapshot.Plan.Float64()
			available, _ := snapshot.Available().Float64()
			render.JSON(w, response{
				Wallet:    wallet,
				Plan:      plan,
				Available: available,
				Stale:     snapshot.Stale,
				FetchedAt: snapshot.FetchedAt,
			})
		case errors.Is(err, apperrors.ErrLedgerUnavailable):
			render.ServiceError(w, "Balance temporarily unavailable", http.StatusServiceUnavailable)
		default:
			l.Error("Failed to get balance", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
