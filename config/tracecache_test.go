package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceCachesRoundTrip(t *testing.T) {
	t.Setenv(EnvTempDir, t.TempDir())

	want := map[Language]TraceCacheDescriptor{
		LanguageGo:   {Path: "/caches/go/trap-cache.tar.gz", Size: 4096},
		LanguageJava: {Path: "/caches/java/trap-cache.tar.gz", Size: 16384},
	}
	require.NoError(t, PersistTraceCaches(want))

	got, err := LoadTraceCaches()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadTraceCachesMissing(t *testing.T) {
	t.Setenv(EnvTempDir, t.TempDir())

	got, err := LoadTraceCaches()
	require.NoError(t, err)
	assert.Nil(t, got, "no autobuild handoff means no caches, not an error")
}

func TestTraceCachesLeaveSnapshotUntouched(t *testing.T) {
	t.Setenv(EnvTempDir, t.TempDir())

	cfg := testConfig()
	require.NoError(t, Persist(cfg))
	before, err := os.ReadFile(StorePath())
	require.NoError(t, err)

	require.NoError(t, PersistTraceCaches(map[Language]TraceCacheDescriptor{
		LanguageGo: {Path: "/caches/go/trap-cache.tar.gz", Size: 4096},
	}))

	after, err := os.ReadFile(StorePath())
	require.NoError(t, err)
	assert.Equal(t, before, after, "cache handoff must not rewrite the config snapshot")
}
