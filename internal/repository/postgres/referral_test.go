package postgres

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consultaplus/carteira/internal/apperrors"
	"github.com/consultaplus/carteira/internal/models"
	"github.com/consultaplus/carteira/internal/testutil"
)

func Test_ReferralRepo(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	withRepo := func(t *testing.T, testFunc func(r *ReferralRepo, referrer models.Account, referred models.Account)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			accounts := &AccountRepo{DB: tx}
			referrer := mustAccount(t, accounts, "padrinho@example.com", "FRIEND01")
			referred := mustAccount(t, accounts, "afilhado@example.com", "FRIEND02")
			testFunc(&ReferralRepo{DB: tx}, referrer, referred)
		})
	}

	t.Run("create referral ok", func(t *testing.T) {
		withRepo(t, func(r *ReferralRepo, referrer models.Account, referred models.Account) {
			record, err := r.CreateReferral(t.Context(), referrer.ID, referred.ID)

			require.NoError(t, err)
			assert.Equal(t, referrer.ID, record.ReferrerID)
			assert.Equal(t, referred.ID, record.ReferredID)
			assert.Equal(t, models.ReferralStatusPending, record.Status)
			assert.True(t, record.Earned.IsZero(), "nothing earned yet")
		})
	})

	t.Run("referred account links once", func(t *testing.T) {
		withRepo(t, func(r *ReferralRepo, referrer models.Account, referred models.Account) {
			_, err := r.CreateReferral(t.Context(), referrer.ID, referred.ID)
			require.NoError(t, err)

			_, err = r.CreateReferral(t.Context(), referrer.ID, referred.ID)
			assert.ErrorIs(t, err, apperrors.ErrReferralAlreadyExists)
		})
	})

	t.Run("self referral rejected", func(t *testing.T) {
		withRepo(t, func(r *ReferralRepo, referrer models.Account, _ models.Account) {
			_, err := r.CreateReferral(t.Context(), referrer.ID, referrer.ID)

			assert.ErrorIs(t, err, apperrors.ErrSelfReferral)
		})
	})

	t.Run("create referral unknown account", func(t *testing.T) {
		withRepo(t, func(r *ReferralRepo, referrer models.Account, _ models.Account) {
			_, err := r.CreateReferral(t.Context(), referrer.ID, uuid.New())

			assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)
		})
	})

	t.Run("get by referred id", func(t *testing.T) {
		withRepo(t, func(r *ReferralRepo, referrer models.Account, referred models.Account) {
			created, err := r.CreateReferral(t.Context(), referrer.ID, referred.ID)
			require.NoError(t, err)

			got, err := r.GetByReferredID(t.Context(), referred.ID)
			require.NoError(t, err)
			assert.Equal(t, created.ID, got.ID)

			_, err = r.GetByReferredID(t.Context(), uuid.New())
			assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)
		})
	})

	t.Run("activate claims a pending record once", func(t *testing.T) {
		withRepo(t, func(r *ReferralRepo, referrer models.Account, referred models.Account) {
			created, err := r.CreateReferral(t.Context(), referrer.ID, referred.ID)
			require.NoError(t, err)

			record, claimed, err := r.Activate(t.Context(), created.ID)
			require.NoError(t, err)
			assert.True(t, claimed)
			assert.Equal(t, models.ReferralStatusActive, record.Status)

			_, claimed, err = r.Activate(t.Context(), created.ID)
			require.NoError(t, err)
			assert.False(t, claimed, "an active record cannot be claimed again")
		})
	})

	t.Run("activate unknown record", func(t *testing.T) {
		withRepo(t, func(r *ReferralRepo, _ models.Account, _ models.Account) {
			_, claimed, err := r.Activate(t.Context(), uuid.New())

			require.NoError(t, err)
			assert.False(t, claimed)
		})
	})

	t.Run("add earned accumulates", func(t *testing.T) {
		withRepo(t, func(r *ReferralRepo, referrer models.Account, referred models.Account) {
			created, err := r.CreateReferral(t.Context(), referrer.ID, referred.ID)
			require.NoError(t, err)

			record, err := r.AddEarned(t.Context(), created.ID, decimal.RequireFromString("10.00"), models.ReferralStatusActive)
			require.NoError(t, err)
			assert.True(t, record.Earned.Equal(decimal.RequireFromString("10.00")))
			assert.Equal(t, models.ReferralStatusActive, record.Status)

			record, err = r.AddEarned(t.Context(), created.ID, decimal.RequireFromString("5.50"), models.ReferralStatusActive)
			require.NoError(t, err)
			assert.True(t, record.Earned.Equal(decimal.RequireFromString("15.50")))
		})
	})

	t.Run("list by referrer id", func(t *testing.T) {
		withRepo(t, func(r *ReferralRepo, referrer models.Account, referred models.Account) {
			_, err := r.CreateReferral(t.Context(), referrer.ID, referred.ID)
			require.NoError(t, err)

			records, err := r.ListByReferrerID(t.Context(), referrer.ID)
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, referred.ID, records[0].ReferredID)

			empty, err := r.ListByReferrerID(t.Context(), referred.ID)
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	})
}
