// Package config defines the pipeline configuration snapshot and the
// on-disk store that hands it between stage processes.
//
// Each stage of the pipeline (init, autobuild, analyze, upload) runs as a
// separate process inside one CI job. The init stage resolves every input
// and remote decision exactly once, then persists the result. Later stages
// reconstruct init's decisions by reading the snapshot; they never
// re-resolve, so a feature flag flipping mid-job cannot make two stages
// disagree about pipeline behavior.
package config

import (
	"strings"

	"github.com/scanforge/scanforge/errors"
)

// Language identifies one analyzed language.
type Language string

// Languages the analysis engine supports.
const (
	LanguageCpp        Language = "cpp"
	LanguageCsharp     Language = "csharp"
	LanguageGo         Language = "go"
	LanguageJava       Language = "java"
	LanguageJavascript Language = "javascript"
	LanguagePython     Language = "python"
	LanguageRuby       Language = "ruby"
	LanguageSwift      Language = "swift"
)

// aliases maps accepted spellings to canonical languages.
var aliases = map[string]Language{
	"c":          LanguageCpp,
	"c++":        LanguageCpp,
	"c#":         LanguageCsharp,
	"typescript": LanguageJavascript,
	"kotlin":     LanguageJava,
}

var knownLanguages = map[Language]bool{
	LanguageCpp:        true,
	LanguageCsharp:     true,
	LanguageGo:         true,
	LanguageJava:       true,
	LanguageJavascript: true,
	LanguagePython:     true,
	LanguageRuby:       true,
	LanguageSwift:      true,
}

// tracedLanguages are compiled languages whose extraction happens by tracing
// a build; they are the ones the autobuild stage may need to build.
var tracedLanguages = map[Language]bool{
	LanguageCpp:    true,
	LanguageCsharp: true,
	LanguageGo:     true,
	LanguageJava:   true,
	LanguageSwift:  true,
}

// IsTraced reports whether extraction for l requires tracing a build.
func (l Language) IsTraced() bool {
	return tracedLanguages[l]
}

// ParseLanguages parses a comma-separated language list into canonical
// languages, preserving first-seen order and dropping duplicates. Order is
// significant: it fixes the iteration and reporting order for every later
// stage.
func ParseLanguages(input string) ([]Language, error) {
	var out []Language
	seen := make(map[Language]bool)
	for _, raw := range strings.Split(input, ",") {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		lang := Language(name)
		if alias, ok := aliases[name]; ok {
			lang = alias
		}
		if !knownLanguages[lang] {
			return nil, errors.WithHintf(
				errors.Newf("unknown language %q", name),
				"Supported languages: cpp, csharp, go, java, javascript, python, ruby, swift.",
			)
		}
		if !seen[lang] {
			seen[lang] = true
			out = append(out, lang)
		}
	}
	return out, nil
}

// ToolsSource records where the resolved analysis tool bundle came from.
type ToolsSource string

const (
	ToolsSourceBundled  ToolsSource = "bundled"  // default bundle shipped with the runner image
	ToolsSourceInput    ToolsSource = "input"    // explicit URL or version given by the operator
	ToolsSourceFlags    ToolsSource = "flags"    // version selected by a feature flag
	ToolsSourceDownload ToolsSource = "download" // fetched from the platform's release channel
)

// TraceCacheDescriptor locates a per-language dependency/trace cache.
type TraceCacheDescriptor struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Config is the cross-process pipeline configuration snapshot. It contains
// only JSON-serializable values: it crosses process boundaries through the
// store, never through memory.
type Config struct {
	// SchemaVersion guards against a stage reading a snapshot persisted by
	// an incompatible scanforge version. Bump on breaking field changes.
	SchemaVersion int `json:"schema_version"`

	// Languages in resolution order. Non-empty once init has run.
	Languages []Language `json:"languages"`

	// QuerySuites maps each language to the query suites analyze will run.
	QuerySuites map[Language][]string `json:"query_suites"`

	// SkipQueries disables query execution entirely (databases are still
	// finalized and uploaded where applicable).
	SkipQueries bool `json:"skip_queries,omitempty"`

	// Path filters, passed through to the engine verbatim. Filters are
	// unions; order is preserved for reproducibility, not for first-match
	// semantics.
	Paths       []string `json:"paths,omitempty"`
	PathsIgnore []string `json:"paths_ignore,omitempty"`

	// Debug flags.
	DebugMode      bool `json:"debug_mode,omitempty"`
	DebugArtifacts bool `json:"debug_artifacts,omitempty"`

	// Resolved analysis tool and its provenance. Per-language trace cache
	// descriptors live in the autobuild-owned side channel (TraceCachePath),
	// not here: this snapshot is immutable once init persists it.
	ToolVersion string      `json:"tool_version"`
	ToolsSource ToolsSource `json:"tools_source"`
	ToolsURL    string      `json:"tools_url,omitempty"`

	// EngineBinary is the absolute path of the resolved engine, so later
	// stages skip re-resolving the bundle.
	EngineBinary string `json:"engine_binary"`

	// JobRunID correlates every status report emitted during this job.
	JobRunID string `json:"job_run_id"`

	// WorkflowStartedAt is the ISO-8601 start time of the surrounding
	// workflow, taken from the environment or stamped by init.
	WorkflowStartedAt string `json:"workflow_started_at"`

	// FeatureSnapshot holds the feature flag values init resolved. Later
	// stages read decisions from here instead of re-resolving.
	FeatureSnapshot map[string]bool `json:"feature_snapshot,omitempty"`

	// ExtraEngineOptions are operator-supplied options appended to every
	// engine invocation.
	ExtraEngineOptions []string `json:"extra_engine_options,omitempty"`
}

// Validate checks the invariants a resolved configuration must hold.
func (c *Config) Validate() error {
	if len(c.Languages) == 0 {
		return errors.WithHint(
			errors.New("no languages resolved"),
			"Pass --languages or set SCANFORGE_LANGUAGES to a comma-separated list.",
		)
	}
	seen := make(map[Language]bool)
	for _, lang := range c.Languages {
		if !knownLanguages[lang] {
			return errors.Newf("unknown language %q in configuration", lang)
		}
		if seen[lang] {
			return errors.Newf("duplicate language %q in configuration", lang)
		}
		seen[lang] = true
	}
	if !c.SkipQueries {
		for _, lang := range c.Languages {
			if len(c.QuerySuites[lang]) == 0 {
				return errors.WithHintf(
					errors.Newf("no query suite selected for language %q", lang),
					"Select a suite for every language, or pass --skip-queries.",
				)
			}
		}
	}
	if c.ToolVersion == "" {
		return errors.New("tool version not resolved")
	}
	if c.EngineBinary == "" {
		return errors.New("engine binary not resolved")
	}
	if c.JobRunID == "" {
		return errors.New("job run id not set")
	}
	return nil
}
