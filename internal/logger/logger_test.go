package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("dev environment ok", func(t *testing.T) {
		l, err := New(EnvDevelopment, LevelDebug)

		require.NoError(t, err)
		require.NotNil(t, l)
	})

	t.Run("prod environment ok", func(t *testing.T) {
		l, err := New(EnvProduction, LevelInfo)

		require.NoError(t, err)
		require.NotNil(t, l)
	})

	t.Run("unknown environment fails", func(t *testing.T) {
		_, err := New("staging", LevelInfo)

		require.Error(t, err)
	})

	t.Run("unknown level fails", func(t *testing.T) {
		_, err := New(EnvDevelopment, "trace")

		require.Error(t, err)
	})
}
