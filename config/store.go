package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/scanforge/scanforge/errors"
)

// CurrentSchemaVersion is stamped into every persisted snapshot. A stage
// refuses to read a snapshot from an incompatible scanforge version rather
// than silently misreading fields.
const CurrentSchemaVersion = 2

// ErrNotInitialized is returned by Load when no snapshot exists: the init
// stage has not run (or ran in a different temp dir). This is the single
// most common operator mistake, so it gets a fixed, actionable message.
var ErrNotInitialized = errors.New("pipeline configuration not found")

// EnvTempDir overrides the job temp directory holding the snapshot and the
// per-language databases. CI runners usually set this to job-scoped scratch
// space.
const EnvTempDir = "SCANFORGE_TEMP"

const storeFileName = "config.json"

// TempDir returns the job-scoped scratch directory.
func TempDir() string {
	if dir := os.Getenv(EnvTempDir); dir != "" {
		return dir
	}
	return filepath.Join(os.TempDir(), "scanforge")
}

// StorePath returns the well-known snapshot location for this job.
func StorePath() string {
	return filepath.Join(TempDir(), storeFileName)
}

// Persist writes the snapshot atomically: a crash mid-write must never
// leave a present-but-corrupt file that a later stage parses into wrong
// decisions.
func Persist(cfg *Config) error {
	cfg.SchemaVersion = CurrentSchemaVersion

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling configuration")
	}
	return writeFileAtomic(StorePath(), data)
}

// writeFileAtomic writes data via a temp file in the target's directory
// followed by a rename, so readers only ever observe complete documents.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating directory for %s", path)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "creating temporary file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, "writing %s", path)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, "syncing %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "closing temporary file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "renaming %s into place", path)
	}
	return nil
}

// Load reads the snapshot persisted by init. A missing file is the
// distinguished ErrNotInitialized condition, not a generic I/O error.
func Load() (*Config, error) {
	return LoadFromFile(StorePath())
}

// LoadFromFile reads a snapshot from a specific path.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.WithHintf(
			errors.Mark(
				errors.Newf("configuration file not found at %s. Has the 'init' action been called?", path),
				ErrNotInitialized,
			),
			"Run 'scanforge init' before any other stage.",
		)
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading configuration")
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing configuration at %s", path)
	}
	if cfg.SchemaVersion != CurrentSchemaVersion {
		return nil, errors.WithHint(
			errors.Newf("configuration schema version %d does not match expected %d",
				cfg.SchemaVersion, CurrentSchemaVersion),
			"The init stage ran with a different scanforge version. Use the same version for every stage of a job.",
		)
	}
	return &cfg, nil
}
