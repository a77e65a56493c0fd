package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/consultaplus/carteira/internal/handlers/accountctx"
	"github.com/consultaplus/carteira/internal/handlers/render"
	"github.com/consultaplus/carteira/internal/models"
)

type accountService interface {
	Authenticate(ctx context.Context, access string) (models.Account, error)
}

// AuthMiddleware resolves the bearer token to an account and puts it on
// the request context. Requests without a valid token get 401.
func AuthMiddleware(as accountService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			account, err := as.Authenticate(r.Context(), token)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := accountctx.New(r.Context(), account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}
