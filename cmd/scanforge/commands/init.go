package commands

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/scanforge/scanforge/config"
	"github.com/scanforge/scanforge/engine"
	"github.com/scanforge/scanforge/errors"
	"github.com/scanforge/scanforge/features"
	"github.com/scanforge/scanforge/logger"
	"github.com/scanforge/scanforge/pipeline"
	"github.com/scanforge/scanforge/tools"
)

// InitCmd resolves inputs and tools, persists the configuration snapshot,
// and creates one database per language.
var InitCmd = &cobra.Command{
	Use:   "init",
	Short: "Resolve configuration and create per-language databases",
	RunE:  runInit,
}

func init() {
	declareInputFlags(InitCmd)
	InitCmd.Flags().String("source-root", ".", "Root of the checked-out source tree")
}

func runInit(cmd *cobra.Command, args []string) error {
	log := logger.Logger
	in, err := resolveInputs(cmd)
	if err != nil {
		return err
	}
	sourceRoot, _ := cmd.Flags().GetString("source-root")
	client := platformClient(in)

	return pipeline.Run(cmd.Context(), pipeline.StageInit, newReporter(client), log, func(ctx context.Context, stats *pipeline.Stats) error {
		langs, err := config.ParseLanguages(in.Languages)
		if err != nil {
			return errors.Mark(err, pipeline.ErrUserError)
		}
		stats.Languages = langs

		jobRunID := config.JobRunID()
		if jobRunID == "" {
			jobRunID = uuid.NewString()
			if err := config.ExportVariable(config.EnvJobRunID, jobRunID); err != nil {
				return err
			}
		}
		workflowStartedAt := config.WorkflowStartedAt()
		if workflowStartedAt == "" {
			workflowStartedAt = time.Now().UTC().Format(time.RFC3339)
			if err := config.ExportVariable(config.EnvWorkflowStartedAt, workflowStartedAt); err != nil {
				return err
			}
		}

		resolver := tools.NewResolver(toolsLocator(client), engine.VersionString, log)
		resolved, err := resolver.Resolve(ctx, in.Tools)
		if err != nil {
			return err
		}
		stats.ToolVersion = resolved.Version
		stats.ToolsSource = string(resolved.Source)
		stats.ToolsDownloadBytes = resolved.BytesDownloaded
		stats.ToolsDownloadDurationMS = resolved.DownloadDuration.Milliseconds()

		plat, err := platformOf(in)
		if err != nil {
			return err
		}
		flags := features.NewResolver(featureFetcher(client), plat, log)
		snapshot := flags.ResolveAll(ctx, func() (string, error) {
			return resolved.Version, nil
		})

		var uc *config.UserConfig
		if in.ConfigFile != "" {
			if uc, err = config.LoadUserConfig(in.ConfigFile); err != nil {
				return errors.Mark(err, pipeline.ErrUserError)
			}
		}
		suites := make(map[config.Language][]string, len(langs))
		for _, lang := range langs {
			suites[lang] = config.QuerySuitesFor(lang, in.Queries, uc)
		}

		extraOpts, err := config.ExtraEngineOptions()
		if err != nil {
			return errors.Mark(err, pipeline.ErrUserError)
		}

		cfg := &config.Config{
			Languages:          langs,
			QuerySuites:        suites,
			SkipQueries:        in.SkipQueries,
			DebugMode:          in.Debug,
			DebugArtifacts:     in.Debug,
			ToolVersion:        resolved.Version,
			ToolsSource:        resolved.Source,
			ToolsURL:           resolved.URL,
			EngineBinary:       resolved.BinaryPath,
			JobRunID:           jobRunID,
			WorkflowStartedAt:  workflowStartedAt,
			FeatureSnapshot:    snapshot,
			ExtraEngineOptions: extraOpts,
		}
		if uc != nil {
			cfg.Paths = uc.Paths
			cfg.PathsIgnore = uc.PathsIgnore
		}
		if err := cfg.Validate(); err != nil {
			return errors.Mark(err, pipeline.ErrUserError)
		}
		if err := config.Persist(cfg); err != nil {
			return err
		}
		log.Infow("Configuration persisted",
			"path", config.StorePath(),
			"languages", in.Languages,
			"tool_version", cfg.ToolVersion,
			"tools_source", cfg.ToolsSource,
		)

		runner := engine.NewRunner(cfg.EngineBinary, log)
		results := pipeline.ForEachLanguage(ctx, langs, log, func(ctx context.Context, lang config.Language) error {
			return runner.DatabaseInit(ctx, lang, sourceRoot)
		})
		stats.LanguageResults = results
		return pipeline.FailuresToError(results)
	})
}
