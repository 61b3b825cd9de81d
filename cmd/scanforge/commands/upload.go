package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/scanforge/scanforge/config"
	"github.com/scanforge/scanforge/engine"
	"github.com/scanforge/scanforge/features"
	"github.com/scanforge/scanforge/logger"
	"github.com/scanforge/scanforge/pipeline"
	"github.com/scanforge/scanforge/upload"
)

// UploadCmd pushes the SARIF results to the platform and waits for
// server-side processing.
var UploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload results to the platform and await processing",
	RunE:  runUpload,
}

func init() {
	declareInputFlags(UploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	log := logger.Logger
	in, err := resolveInputs(cmd)
	if err != nil {
		return err
	}
	client := platformClient(in)

	return pipeline.Run(cmd.Context(), pipeline.StageUpload, newReporter(client), log, func(ctx context.Context, stats *pipeline.Stats) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		stats.Languages = cfg.Languages
		stats.ToolVersion = cfg.ToolVersion
		stats.ToolsSource = string(cfg.ToolsSource)

		if client == nil {
			return pipeline.NewUserError(
				"upload requires platform access: set --api-url and --token or the matching SCANFORGE_* variables")
		}

		uploader := upload.NewUploader(client, log)
		resultsDir := engine.NewRunner(cfg.EngineBinary, log).ResultsDir()
		res, err := uploader.Upload(ctx, resultsDir, upload.Metadata{
			Repository:        in.Repository,
			Ref:               in.Ref,
			Commit:            in.Commit,
			ToolVersion:       cfg.ToolVersion,
			JobRunID:          cfg.JobRunID,
			WorkflowStartedAt: cfg.WorkflowStartedAt,
			Languages:         cfg.Languages,
		})
		if err != nil {
			return err
		}

		processing, err := uploader.WaitForProcessing(ctx, res.ArtifactID)
		if err != nil {
			return err
		}
		log.Infow("Upload complete",
			"artifact_id", res.ArtifactID,
			"processing", processing,
		)

		if cfg.FeatureSnapshot[features.TrapCacheUpload] {
			caches, err := config.LoadTraceCaches()
			if err != nil {
				return err
			}
			if len(caches) > 0 {
				stats.TrapCacheUploadBytes = uploader.UploadTrapCaches(ctx, cfg.JobRunID, caches)
			}
		}
		return nil
	})
}
