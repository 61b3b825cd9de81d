package features

import (
	"context"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scanforge/scanforge/errors"
)

type countingFetcher struct {
	calls int
	doc   map[string]bool
	err   error
}

func (f *countingFetcher) FeatureFlags(context.Context) (map[string]bool, error) {
	f.calls++
	return f.doc, f.err
}

func hostedPlatform() Platform { return Platform{} }

func selfHosted(v string) Platform {
	return Platform{Version: semver.MustParse(v)}
}

func TestResolveBelowGateNeverFetches(t *testing.T) {
	fetcher := &countingFetcher{doc: map[string]bool{TrapCacheUpload: true}}
	r := NewResolver(fetcher, selfHosted("3.8.0"), zap.NewNop().Sugar())

	// trap_cache_upload requires platform 3.11.0.
	got := r.Resolve(context.Background(), TrapCacheUpload, nil)
	assert.False(t, got, "below the gate the static default applies")
	assert.Zero(t, fetcher.calls, "below the gate no network call is made")
}

func TestResolveAboveGateUsesRemoteValue(t *testing.T) {
	fetcher := &countingFetcher{doc: map[string]bool{TrapCacheUpload: true}}
	r := NewResolver(fetcher, selfHosted("3.11.0"), zap.NewNop().Sugar())

	assert.True(t, r.Resolve(context.Background(), TrapCacheUpload, nil))
	assert.Equal(t, 1, fetcher.calls)
}

func TestResolveFetchFailureFailsOpen(t *testing.T) {
	fetcher := &countingFetcher{err: errors.New("flag service down")}
	r := NewResolver(fetcher, hostedPlatform(), zap.NewNop().Sugar())

	assert.False(t, r.Resolve(context.Background(), TrapCacheUpload, nil),
		"fetch failure resolves to the static default, it never errors")
	assert.Equal(t, 1, fetcher.calls)
}

func TestResolveMemoizesFetch(t *testing.T) {
	fetcher := &countingFetcher{doc: map[string]bool{
		TrapCacheUpload:   true,
		DependencyCaching: true,
	}}
	r := NewResolver(fetcher, hostedPlatform(), zap.NewNop().Sugar())

	ctx := context.Background()
	assert.True(t, r.Resolve(ctx, TrapCacheUpload, nil))
	assert.True(t, r.Resolve(ctx, DependencyCaching, nil))
	assert.False(t, r.Resolve(ctx, ExportTimings, nil))
	assert.Equal(t, 1, fetcher.calls, "the document is fetched once per process")
}

func TestResolveToolVersionGate(t *testing.T) {
	ctx := context.Background()
	doc := map[string]bool{AnalyzeDiagnostics: true}

	t.Run("tool version queried lazily and satisfies gate", func(t *testing.T) {
		queried := 0
		toolVersion := func() (string, error) {
			queried++
			return "2.13.0", nil
		}
		r := NewResolver(&countingFetcher{doc: doc}, hostedPlatform(), zap.NewNop().Sugar())
		assert.True(t, r.Resolve(ctx, AnalyzeDiagnostics, toolVersion))
		assert.Equal(t, 1, queried)
	})

	t.Run("tool below gate disables", func(t *testing.T) {
		toolVersion := func() (string, error) { return "2.12.5", nil }
		r := NewResolver(&countingFetcher{doc: doc}, hostedPlatform(), zap.NewNop().Sugar())
		assert.False(t, r.Resolve(ctx, AnalyzeDiagnostics, toolVersion))
	})

	t.Run("tool version not queried when flag disabled remotely", func(t *testing.T) {
		queried := 0
		toolVersion := func() (string, error) {
			queried++
			return "2.13.0", nil
		}
		fetcher := &countingFetcher{doc: map[string]bool{AnalyzeDiagnostics: false}}
		r := NewResolver(fetcher, hostedPlatform(), zap.NewNop().Sugar())
		assert.False(t, r.Resolve(ctx, AnalyzeDiagnostics, toolVersion))
		assert.Zero(t, queried, "tool resolution is deferred until a flag needs it")
	})

	t.Run("tool version error falls back to default", func(t *testing.T) {
		toolVersion := func() (string, error) { return "", errors.New("tool not resolved") }
		r := NewResolver(&countingFetcher{doc: doc}, hostedPlatform(), zap.NewNop().Sugar())
		assert.False(t, r.Resolve(ctx, AnalyzeDiagnostics, toolVersion))
	})
}

func TestResolveUnknownFlag(t *testing.T) {
	fetcher := &countingFetcher{doc: map[string]bool{"mystery": true}}
	r := NewResolver(fetcher, hostedPlatform(), zap.NewNop().Sugar())
	assert.False(t, r.Resolve(context.Background(), "mystery", nil))
	assert.Zero(t, fetcher.calls, "unknown flags resolve without fetching")
}

func TestResolveAll(t *testing.T) {
	fetcher := &countingFetcher{doc: map[string]bool{
		TrapCacheUpload: true,
		ExportTimings:   true,
	}}
	r := NewResolver(fetcher, hostedPlatform(), zap.NewNop().Sugar())

	snapshot := r.ResolveAll(context.Background(), func() (string, error) { return "2.17.4", nil })
	require.Len(t, snapshot, 5)
	assert.True(t, snapshot[TrapCacheUpload])
	assert.True(t, snapshot[ExportTimings])
	assert.False(t, snapshot[DependencyCaching])
	assert.Equal(t, 1, fetcher.calls)
}

func TestNilFetcherResolvesDefaults(t *testing.T) {
	r := NewResolver(nil, hostedPlatform(), zap.NewNop().Sugar())
	assert.False(t, r.Resolve(context.Background(), TrapCacheUpload, nil))
}
