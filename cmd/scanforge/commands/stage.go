// Package commands defines the scanforge subcommands. Each stage command
// is a thin shell: it resolves inputs, builds the platform client and
// reporter, and hands its body to the pipeline coordinator.
package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/scanforge/scanforge/config"
	"github.com/scanforge/scanforge/errors"
	"github.com/scanforge/scanforge/features"
	"github.com/scanforge/scanforge/logger"
	"github.com/scanforge/scanforge/pipeline"
	"github.com/scanforge/scanforge/platform"
	"github.com/scanforge/scanforge/status"
	"github.com/scanforge/scanforge/tools"

	"github.com/Masterminds/semver/v3"
)

// inputFlagNames are the stage inputs exposed as flags; each binds to the
// viper key with dashes replaced by underscores, so SCANFORGE_API_URL and
// --api-url resolve to the same input.
var inputFlagNames = []string{
	"languages", "queries", "config-file", "tools",
	"debug", "skip-queries",
	"api-url", "token",
	"repository", "ref", "commit", "platform-version",
}

func declareInputFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("languages", "", "Comma-separated languages to analyze")
	flags.String("queries", "", "Query suites (prefix with + to add to the defaults)")
	flags.String("config-file", "", "Path to the analysis configuration YAML")
	flags.String("tools", "", "Engine bundle: a URL, 'linked', 'latest', or empty for the bundled engine")
	flags.Bool("debug", false, "Enable debug mode and debug artifacts")
	flags.Bool("skip-queries", false, "Build databases without running queries")
	flags.String("api-url", "", "Platform API base URL")
	flags.String("token", "", "Platform API token")
	flags.String("repository", "", "Repository in owner/name form")
	flags.String("ref", "", "Git ref under analysis")
	flags.String("commit", "", "Commit SHA under analysis")
	flags.String("platform-version", "", "Self-hosted platform version (empty for the hosted platform)")
}

// resolveInputs merges flag values over environment variables and defaults.
func resolveInputs(cmd *cobra.Command) (*config.Inputs, error) {
	v := config.NewViper()
	for _, name := range inputFlagNames {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			if err := v.BindPFlag(strings.ReplaceAll(name, "-", "_"), flag); err != nil {
				return nil, errors.Wrapf(err, "binding flag %s", name)
			}
		}
	}
	return config.ResolveInputs(v)
}

// platformClient builds the platform client, or nil when no API URL was
// provided. Stages that can run offline treat a nil client as "telemetry
// and flags disabled".
func platformClient(in *config.Inputs) *platform.Client {
	if in.APIURL == "" {
		return nil
	}
	return platform.NewClient(in.APIURL, in.Token, logger.Logger)
}

// newReporter wraps the client as a telemetry sink. The nil checks keep a
// nil *Client from becoming a non-nil interface.
func newReporter(client *platform.Client) *status.Reporter {
	var sink status.Sink
	if client != nil {
		sink = client
	}
	return status.NewReporter(sink, logger.Logger)
}

func featureFetcher(client *platform.Client) features.Fetcher {
	if client == nil {
		return nil
	}
	return client
}

func toolsLocator(client *platform.Client) tools.BundleLocator {
	if client == nil {
		return nil
	}
	return client
}

// platformOf parses the platform-version input into the feature gate.
func platformOf(in *config.Inputs) (features.Platform, error) {
	if in.PlatformVersion == "" {
		return features.Platform{}, nil
	}
	v, err := semver.NewVersion(in.PlatformVersion)
	if err != nil {
		return features.Platform{}, errors.Mark(
			errors.Wrapf(err, "parsing platform version %q", in.PlatformVersion),
			pipeline.ErrUserError,
		)
	}
	return features.Platform{Version: v}, nil
}

// loadConfig reads the snapshot persisted by init. A missing snapshot is
// the operator running stages out of order, already marked as such by the
// store.
func loadConfig() (*config.Config, error) {
	return config.Load()
}
