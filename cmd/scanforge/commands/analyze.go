package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/scanforge/scanforge/config"
	"github.com/scanforge/scanforge/engine"
	"github.com/scanforge/scanforge/logger"
	"github.com/scanforge/scanforge/pipeline"
)

// AnalyzeCmd finalizes each language's database, runs its query suites,
// and renders SARIF results.
var AnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Finalize databases, run queries, and produce SARIF results",
	RunE:  runAnalyze,
}

func init() {
	declareInputFlags(AnalyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	log := logger.Logger
	in, err := resolveInputs(cmd)
	if err != nil {
		return err
	}

	return pipeline.Run(cmd.Context(), pipeline.StageAnalyze, newReporter(platformClient(in)), log, func(ctx context.Context, stats *pipeline.Stats) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		stats.Languages = cfg.Languages
		stats.ToolVersion = cfg.ToolVersion
		stats.ToolsSource = string(cfg.ToolsSource)

		runner := engine.NewRunner(cfg.EngineBinary, log)
		runner.ExtraOptions = cfg.ExtraEngineOptions

		totalResults := 0
		results := pipeline.ForEachLanguage(ctx, cfg.Languages, log, func(ctx context.Context, lang config.Language) error {
			if err := runner.DatabaseFinalize(ctx, lang); err != nil {
				return err
			}
			if cfg.SkipQueries {
				log.Infow("Queries skipped by configuration", "language", lang)
				return nil
			}
			if err := runner.RunQueries(ctx, lang, cfg.QuerySuites[lang]); err != nil {
				return err
			}
			sarifPath, err := runner.Interpret(ctx, lang)
			if err != nil {
				return err
			}
			count, err := engine.CountResults(sarifPath)
			if err != nil {
				return err
			}
			totalResults += count
			log.Infow("Language analyzed",
				"language", lang,
				"results", count,
				"sarif", sarifPath,
			)
			return nil
		})
		stats.LanguageResults = results
		stats.ResultsCount = totalResults

		return pipeline.FailuresToError(results)
	})
}
