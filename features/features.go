// Package features resolves the named capability flags that gate pipeline
// behavior.
//
// Flags are fetched from the platform once per process and memoized; a
// misbehaving flag service never aborts the pipeline (resolution fails
// open to static defaults). The init stage bakes its resolved values into
// the configuration snapshot so later stages see consistent behavior even
// if the remote flag flips mid-job.
package features

import (
	"context"
	"sync"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"
)

// Flag names understood by the pipeline.
const (
	// AnalyzeDiagnostics exports engine diagnostics alongside results.
	AnalyzeDiagnostics = "analyze_diagnostics"

	// TrapCacheUpload enables the fire-and-forget TRAP cache upload after
	// a successful analyze stage.
	TrapCacheUpload = "trap_cache_upload"

	// DependencyCaching restores per-language dependency caches before
	// autobuild.
	DependencyCaching = "dependency_caching"

	// ExportTimings adds per-query timing fields to the analyze report.
	ExportTimings = "export_timings"

	// MultiLanguageTracing traces one build for all compiled languages at
	// once instead of building per language.
	MultiLanguageTracing = "multi_language_tracing"
)

// Flag declares one capability flag: its static default and the minimum
// platform and tool versions it requires.
type Flag struct {
	Name    string
	Default bool

	// MinPlatformVersion gates self-hosted platforms: below this version
	// the flag resolves to its default without any remote call. Nil means
	// no platform gate.
	MinPlatformVersion *semver.Version

	// MinToolVersion additionally requires a minimum analysis tool
	// version. The tool version is supplied lazily by the caller and only
	// consulted when the flag is otherwise enabled.
	MinToolVersion *semver.Version
}

// knownFlags is the static flag registry. Defaults apply whenever the
// remote document is unavailable or the platform is below the gate.
var knownFlags = map[string]Flag{
	AnalyzeDiagnostics: {
		Name:               AnalyzeDiagnostics,
		MinPlatformVersion: semver.MustParse("3.9.0"),
		MinToolVersion:     semver.MustParse("2.12.6"),
	},
	TrapCacheUpload: {
		Name:               TrapCacheUpload,
		MinPlatformVersion: semver.MustParse("3.11.0"),
	},
	DependencyCaching: {
		Name:               DependencyCaching,
		MinPlatformVersion: semver.MustParse("3.11.0"),
	},
	ExportTimings: {
		Name: ExportTimings,
	},
	MultiLanguageTracing: {
		Name:               MultiLanguageTracing,
		MinPlatformVersion: semver.MustParse("3.12.0"),
		MinToolVersion:     semver.MustParse("2.15.0"),
	},
}

// Platform describes the hosting platform the job runs against. A nil
// Version means the hosted platform, which is always current and passes
// every gate.
type Platform struct {
	Version *semver.Version
}

// meetsGate reports whether the platform passes a flag's version gate.
func (p Platform) meetsGate(f Flag) bool {
	if f.MinPlatformVersion == nil || p.Version == nil {
		return true
	}
	return !p.Version.LessThan(f.MinPlatformVersion)
}

// Fetcher retrieves the remote flag document.
type Fetcher interface {
	FeatureFlags(ctx context.Context) (map[string]bool, error)
}

// Resolver resolves flags against the platform gate and the remote
// document, fetching the document at most once per process.
type Resolver struct {
	fetcher  Fetcher
	platform Platform
	log      *zap.SugaredLogger

	once     sync.Once
	document map[string]bool
	fetchErr error
}

// NewResolver creates a Resolver. A nil fetcher resolves everything to
// static defaults.
func NewResolver(fetcher Fetcher, platform Platform, log *zap.SugaredLogger) *Resolver {
	return &Resolver{fetcher: fetcher, platform: platform, log: log}
}

// ToolVersionFunc lazily supplies the resolved analysis tool version. It is
// only invoked when a flag actually gates on the tool version, so callers
// can defer tool resolution until something needs it.
type ToolVersionFunc func() (string, error)

// Resolve returns the value of a named flag. Unknown flags resolve to
// false. Remote fetch failures fall back to the static default: a flag
// service outage degrades features, never the pipeline.
func (r *Resolver) Resolve(ctx context.Context, name string, toolVersion ToolVersionFunc) bool {
	flag, ok := knownFlags[name]
	if !ok {
		r.log.Warnw("Unknown feature flag requested", "flag", name)
		return false
	}

	if !r.platform.meetsGate(flag) {
		return flag.Default
	}

	value := flag.Default
	if doc := r.fetchOnce(ctx); doc != nil {
		if remote, ok := doc[name]; ok {
			value = remote
		}
	}
	if !value {
		return false
	}

	if flag.MinToolVersion != nil {
		if toolVersion == nil {
			return flag.Default
		}
		raw, err := toolVersion()
		if err != nil {
			r.log.Warnw("Could not determine tool version for flag gate, using default",
				"flag", name, "error", err)
			return flag.Default
		}
		v, err := semver.NewVersion(raw)
		if err != nil {
			r.log.Warnw("Unparseable tool version for flag gate, using default",
				"flag", name, "tool_version", raw, "error", err)
			return flag.Default
		}
		if v.LessThan(flag.MinToolVersion) {
			return false
		}
	}

	return value
}

// ResolveAll resolves every known flag, producing the snapshot init bakes
// into the persisted configuration.
func (r *Resolver) ResolveAll(ctx context.Context, toolVersion ToolVersionFunc) map[string]bool {
	out := make(map[string]bool, len(knownFlags))
	for name := range knownFlags {
		out[name] = r.Resolve(ctx, name, toolVersion)
	}
	return out
}

// fetchOnce fetches the remote flag document on first use and memoizes it
// for the rest of the process lifetime. Returns nil when no document is
// available.
func (r *Resolver) fetchOnce(ctx context.Context) map[string]bool {
	if r.fetcher == nil {
		return nil
	}
	r.once.Do(func() {
		r.document, r.fetchErr = r.fetcher.FeatureFlags(ctx)
		if r.fetchErr != nil {
			r.log.Warnw("Feature flag fetch failed, falling back to defaults", "error", r.fetchErr)
		}
	})
	return r.document
}
