package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCheckDiskSpace(t *testing.T) {
	log := zap.NewNop().Sugar()

	t.Run("passes with a tiny threshold and reports free space", func(t *testing.T) {
		t.Setenv(EnvMinimumFreeMB, "1")
		freeMB, err := CheckDiskSpace(t.TempDir(), log)
		assert.NoError(t, err)
		assert.Positive(t, freeMB)
	})

	t.Run("fails when threshold is impossibly large", func(t *testing.T) {
		t.Setenv(EnvMinimumFreeMB, "999999999")
		_, err := CheckDiskSpace(t.TempDir(), log)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insufficient disk space")
	})

	t.Run("zero threshold disables the check", func(t *testing.T) {
		t.Setenv(EnvMinimumFreeMB, "0")
		_, err := CheckDiskSpace(t.TempDir(), log)
		assert.NoError(t, err)
	})

	t.Run("garbage threshold falls back to default", func(t *testing.T) {
		t.Setenv(EnvMinimumFreeMB, "not-a-number")
		// Default threshold is modest; a CI runner temp dir should pass.
		_, err := CheckDiskSpace(t.TempDir(), log)
		assert.NoError(t, err)
	})
}
