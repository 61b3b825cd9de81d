package commands

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/scanforge/scanforge/config"
	"github.com/scanforge/scanforge/engine"
	"github.com/scanforge/scanforge/logger"
	"github.com/scanforge/scanforge/pipeline"
)

// AutobuildCmd builds the project for traced languages so the engine
// observes the build. Non-traced languages need no build and are skipped.
var AutobuildCmd = &cobra.Command{
	Use:   "autobuild",
	Short: "Build the project for traced languages",
	RunE:  runAutobuild,
}

func init() {
	declareInputFlags(AutobuildCmd)
}

const traceCacheFile = "trap-cache.tar.gz"

func runAutobuild(cmd *cobra.Command, args []string) error {
	log := logger.Logger
	in, err := resolveInputs(cmd)
	if err != nil {
		return err
	}

	return pipeline.Run(cmd.Context(), pipeline.StageAutobuild, newReporter(platformClient(in)), log, func(ctx context.Context, stats *pipeline.Stats) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		stats.Languages = cfg.Languages
		stats.ToolVersion = cfg.ToolVersion
		stats.ToolsSource = string(cfg.ToolsSource)

		runner := engine.NewRunner(cfg.EngineBinary, log)
		caches := make(map[config.Language]config.TraceCacheDescriptor)

		results := pipeline.ForEachLanguage(ctx, cfg.Languages, log, func(ctx context.Context, lang config.Language) error {
			if !lang.IsTraced() {
				log.Debugw("Language needs no build, skipping", "language", lang)
				return nil
			}
			if config.DidAutobuild(lang) {
				log.Infow("Autobuild already ran for language in this job, skipping", "language", lang)
				return nil
			}
			if err := runner.RunAutobuild(ctx, lang); err != nil {
				return err
			}
			if err := config.MarkAutobuildDone(lang); err != nil {
				return err
			}
			// A cache the build produced is uploaded later, flag permitting.
			cachePath := filepath.Join(runner.DatabasePath(lang), traceCacheFile)
			if info, err := os.Stat(cachePath); err == nil {
				caches[lang] = config.TraceCacheDescriptor{Path: cachePath, Size: info.Size()}
			}
			return nil
		})
		stats.LanguageResults = results

		// Descriptors go into a file this stage owns; the config snapshot
		// stays untouched after init writes it.
		if len(caches) > 0 {
			if err := config.PersistTraceCaches(caches); err != nil {
				return err
			}
		}
		return pipeline.FailuresToError(results)
	})
}
