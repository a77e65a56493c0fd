package handlers

import (
	"net/http"
	"time"

	"github.com/consultaplus/carteira/internal/handlers/accountctx"
	"github.com/consultaplus/carteira/internal/handlers/render"
	"github.com/consultaplus/carteira/internal/logger"
)

func handleListReferrals(referralService referralService, l logger.Logger) http.Handler {
	type referral struct {
		ReferredID string    `json:"referred_id"`
		CreatedAt  time.Time `json:"created_at"`
		Earned     float64   `json:"earned"`
		Status     string    `json:"status"`
	}

	type response struct {
		Code      string     `json:"code"`
		Referrals []referral `json:"referrals"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := accountctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		records, err := referralService.Earnings(r.Context(), account.ID)

		switch err {
		case nil:
			referrals := make([]referral, 0, len(records))
			for _, record := range records {
				earned, _ := record.Earned.Float64()
				referrals = append(referrals, referral{
					ReferredID: record.ReferredID.String(),
					CreatedAt:  record.CreatedAt,
					Earned:     earned,
					Status:     record.Status,
				})
			}
			render.JSON(w, response{Code: account.ReferralCode, Referrals: referrals})
		default:
			l.Error("Failed to list referrals", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
