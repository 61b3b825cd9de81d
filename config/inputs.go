package config

import (
	"os"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/viper"

	"github.com/scanforge/scanforge/errors"
)

// EnvExtraOptions carries operator-supplied engine options as one
// shell-quoted string, e.g. `--ram=2048 "--threads=4"`.
const EnvExtraOptions = "SCANFORGE_EXTRA_OPTIONS"

// Inputs are the raw named inputs a stage entry point accepts. They resolve
// through viper in precedence order: defaults, then SCANFORGE_* environment
// variables, then bound command-line flags.
type Inputs struct {
	Languages   string `mapstructure:"languages"`
	Queries     string `mapstructure:"queries"`
	ConfigFile  string `mapstructure:"config_file"`
	Tools       string `mapstructure:"tools"`
	Debug       bool   `mapstructure:"debug"`
	SkipQueries bool   `mapstructure:"skip_queries"`

	// Platform connection.
	APIURL string `mapstructure:"api_url"`
	Token  string `mapstructure:"token"`

	// Repository metadata stamped onto uploads, provided by the CI runner.
	Repository string `mapstructure:"repository"`
	Ref        string `mapstructure:"ref"`
	Commit     string `mapstructure:"commit"`

	// Platform version, used to gate feature flags. Empty means the hosted
	// platform (always current).
	PlatformVersion string `mapstructure:"platform_version"`
}

// NewViper builds the viper instance stages resolve their inputs through.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("SCANFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("languages", "")
	v.SetDefault("queries", "")
	v.SetDefault("config_file", "")
	v.SetDefault("tools", "")
	v.SetDefault("debug", false)
	v.SetDefault("skip_queries", false)
	v.SetDefault("api_url", "")
	v.SetDefault("token", "")
	v.SetDefault("repository", "")
	v.SetDefault("ref", "")
	v.SetDefault("commit", "")
	v.SetDefault("platform_version", "")
}

// ResolveInputs unmarshals the resolved input set.
func ResolveInputs(v *viper.Viper) (*Inputs, error) {
	var in Inputs
	if err := v.Unmarshal(&in); err != nil {
		return nil, errors.Wrap(err, "resolving stage inputs")
	}
	return &in, nil
}

// ExtraEngineOptions parses SCANFORGE_EXTRA_OPTIONS into argv tokens.
func ExtraEngineOptions() ([]string, error) {
	raw := os.Getenv(EnvExtraOptions)
	if raw == "" {
		return nil, nil
	}
	opts, err := shellquote.Split(raw)
	if err != nil {
		return nil, errors.WithHintf(
			errors.Wrapf(err, "parsing %s", EnvExtraOptions),
			"%s must be a shell-quoted option string.", EnvExtraOptions,
		)
	}
	return opts, nil
}
