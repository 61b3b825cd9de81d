package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/scanforge/scanforge/config"
	"github.com/scanforge/scanforge/errors"
)

// LanguageResult records the outcome of one language's sub-steps within a
// fan-out stage.
type LanguageResult struct {
	Language config.Language
	Err      error
}

// Failed reports whether this language's processing failed.
func (r LanguageResult) Failed() bool { return r.Err != nil }

// ForEachLanguage runs fn once per language in the order given. One
// language failing never stops the remaining languages: the engine
// reporting a failure for Java must not cost the operator their Go and
// JavaScript results. Iteration order is preserved in the returned slice
// because downstream aggregation keys off position as well as name.
func ForEachLanguage(ctx context.Context, langs []config.Language, log *zap.SugaredLogger, fn func(ctx context.Context, lang config.Language) error) []LanguageResult {
	results := make([]LanguageResult, 0, len(langs))
	for _, lang := range langs {
		err := fn(ctx, lang)
		if err != nil {
			log.Errorw("Language processing failed, continuing with remaining languages",
				"language", lang,
				"error", err,
			)
		}
		results = append(results, LanguageResult{Language: lang, Err: err})
	}
	return results
}

// FirstFailure returns the first failed result, or nil if all succeeded.
func FirstFailure(results []LanguageResult) *LanguageResult {
	for i := range results {
		if results[i].Failed() {
			return &results[i]
		}
	}
	return nil
}

// FailuresToError collapses per-language failures into one stage error, or
// nil when every language completed.
func FailuresToError(results []LanguageResult) error {
	var failed []string
	var first error
	for _, r := range results {
		if r.Failed() {
			failed = append(failed, string(r.Language))
			if first == nil {
				first = r.Err
			}
		}
	}
	if first == nil {
		return nil
	}
	return errors.Wrapf(first, "analysis failed for %s", strings.Join(failed, ", "))
}
