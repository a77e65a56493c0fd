package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/consultaplus/carteira/internal/handlers/accountctx"
	"github.com/consultaplus/carteira/internal/handlers/render"
	"github.com/consultaplus/carteira/internal/logger"
	"github.com/consultaplus/carteira/internal/repository"
)

func handleListTransactions(ledgerService ledgerService, l logger.Logger) http.Handler {
	type transaction struct {
		ID          string    `json:"id"`
		CreatedAt   time.Time `json:"created_at"`
		Amount      float64   `json:"amount"`
		Pool        string    `json:"pool"`
		Kind        string    `json:"kind"`
		Description string    `json:"description"`
		Status      string    `json:"status"`
		ReferenceID *string   `json:"reference_id,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, ok := accountctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		opts := repository.ListTransactionsOpts{
			Limit:  queryInt(r, "limit"),
			Offset: queryInt(r, "offset"),
		}
		if kind := r.URL.Query().Get("kind"); kind != "" {
			opts.Kinds = []string{kind}
		}
		if status := r.URL.Query().Get("status"); status != "" {
			opts.Statuses = []string{status}
		}

		history, err := ledgerService.History(r.Context(), account.ID, opts)

		switch err {
		case nil:
			transactions := make([]transaction, 0, len(history))
			for _, t := range history {
				amount, _ := t.Amount.Float64()
				transactions = append(transactions, transaction{
					ID:          t.ID.String(),
					CreatedAt:   t.CreatedAt,
					Amount:      amount,
					Pool:        t.Pool,
					Kind:        t.Kind,
					Description: t.Description,
					Status:      t.Status,
					ReferenceID: t.ReferenceID,
				})
			}
			render.JSON(w, transactions)
		default:
			l.Error("Failed to list transactions", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

// queryInt reads a non-negative int query param, zero when absent or bad
func queryInt(r *http.Request, name string) int {
	value, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || value < 0 {
		return 0
	}
	return value
}
