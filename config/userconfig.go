package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scanforge/scanforge/errors"
)

// UserConfig is the operator's analysis configuration file (YAML), checked
// into the analyzed repository. It refines which queries run and which
// paths the engine extracts.
type UserConfig struct {
	Name                 string   `yaml:"name"`
	DisableDefaultSuites bool     `yaml:"disable-default-queries"`
	Queries              []string `yaml:"queries"`
	Paths                []string `yaml:"paths"`
	PathsIgnore          []string `yaml:"paths-ignore"`
}

// LoadUserConfig parses the analysis configuration file at path. A missing
// file is a user error: the operator explicitly pointed at it.
func LoadUserConfig(path string) (*UserConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.WithHintf(
			errors.Newf("analysis configuration file not found at %s", path),
			"Check the config-file input; the path is relative to the repository root.",
		)
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading analysis configuration file")
	}

	var uc UserConfig
	if err := yaml.Unmarshal(data, &uc); err != nil {
		return nil, errors.Wrapf(err, "parsing analysis configuration file %s", path)
	}
	return &uc, nil
}

// QuerySuitesFor combines the queries input, the user config, and the
// per-language defaults into the suite selection for one language.
func QuerySuitesFor(lang Language, queriesInput string, uc *UserConfig) []string {
	var suites []string
	useDefault := true

	if uc != nil {
		suites = append(suites, uc.Queries...)
		if uc.DisableDefaultSuites {
			useDefault = false
		}
	}
	if queriesInput != "" {
		// A leading + adds to the configured suites; a plain entry
		// anywhere in the input replaces them. The replace decision
		// applies once to the whole input, so every entry survives:
		// "+extra,main" runs both extra and main.
		var fromInput []string
		replace := false
		for _, s := range splitAndTrim(queriesInput) {
			if strings.HasPrefix(s, "+") {
				fromInput = append(fromInput, strings.TrimPrefix(s, "+"))
			} else {
				fromInput = append(fromInput, s)
				replace = true
			}
		}
		if replace {
			suites = fromInput
			useDefault = false
		} else {
			suites = append(suites, fromInput...)
		}
	}
	if useDefault {
		suites = append(suites, string(lang)+"-default")
	}
	return suites
}

func splitAndTrim(input string) []string {
	var out []string
	for _, part := range strings.Split(input, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
