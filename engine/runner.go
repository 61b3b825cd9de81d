// Package engine wraps the analysis engine CLI as a subprocess. The
// coordinator never interprets engine internals: it assembles invocations,
// inspects exit codes, and checks that expected output files exist.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/scanforge/scanforge/config"
	"github.com/scanforge/scanforge/errors"
)

// Runner invokes one engine binary against per-language databases laid out
// under the job temp dir.
type Runner struct {
	binary string
	// ExtraOptions is appended to every query invocation, parsed from the
	// operator's extra-options input.
	ExtraOptions []string

	workDir string
	log     *zap.SugaredLogger
}

// NewRunner creates a Runner for the resolved engine binary.
func NewRunner(binary string, log *zap.SugaredLogger) *Runner {
	return &Runner{
		binary:  binary,
		workDir: config.TempDir(),
		log:     log,
	}
}

// DatabasePath is the per-language database directory.
func (r *Runner) DatabasePath(lang config.Language) string {
	return filepath.Join(r.workDir, "db", string(lang))
}

// ResultsPath is where Interpret writes the per-language SARIF file.
func (r *Runner) ResultsPath(lang config.Language) string {
	return filepath.Join(r.workDir, "results", string(lang)+".sarif")
}

// ResultsDir holds all per-language SARIF files.
func (r *Runner) ResultsDir() string {
	return filepath.Join(r.workDir, "results")
}

// DatabaseInit creates the language's database. Traced languages get
// tracing enabled so a later build is observed.
func (r *Runner) DatabaseInit(ctx context.Context, lang config.Language, sourceRoot string) error {
	args := []string{
		"database", "init",
		"--language", string(lang),
		"--source-root", sourceRoot,
	}
	if lang.IsTraced() {
		args = append(args, "--enable-tracing")
	}
	args = append(args, r.DatabasePath(lang))
	_, err := r.run(ctx, args...)
	return errors.Wrapf(err, "initializing %s database", lang)
}

// RunAutobuild asks the engine to build the project for a traced language.
func (r *Runner) RunAutobuild(ctx context.Context, lang config.Language) error {
	_, err := r.run(ctx, "database", "autobuild", r.DatabasePath(lang))
	return errors.Wrapf(err, "autobuilding %s", lang)
}

// DatabaseFinalize seals the database so queries can run against it.
func (r *Runner) DatabaseFinalize(ctx context.Context, lang config.Language) error {
	_, err := r.run(ctx, "database", "finalize", r.DatabasePath(lang))
	return errors.Wrapf(err, "finalizing %s database", lang)
}

// RunQueries evaluates the language's query suites against its database.
func (r *Runner) RunQueries(ctx context.Context, lang config.Language, suites []string) error {
	if len(suites) == 0 {
		return errors.Newf("no query suites for %s", lang)
	}
	args := []string{"database", "run-queries", r.DatabasePath(lang)}
	args = append(args, suites...)
	args = append(args, r.ExtraOptions...)
	_, err := r.run(ctx, args...)
	return errors.Wrapf(err, "running %s queries", lang)
}

// Interpret renders the language's raw results to SARIF and returns the
// output path. A zero-length or missing output is a failure even when the
// engine exited 0.
func (r *Runner) Interpret(ctx context.Context, lang config.Language) (string, error) {
	out := r.ResultsPath(lang)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", errors.Wrap(err, "creating results directory")
	}
	args := []string{
		"database", "interpret",
		"--format", "sarif",
		"--output", out,
		r.DatabasePath(lang),
	}
	if _, err := r.run(ctx, args...); err != nil {
		return "", errors.Wrapf(err, "interpreting %s results", lang)
	}
	info, err := os.Stat(out)
	if err != nil {
		return "", errors.Wrapf(err, "engine reported success but wrote no SARIF for %s", lang)
	}
	if info.Size() == 0 {
		return "", errors.Newf("engine wrote an empty SARIF file for %s", lang)
	}
	return out, nil
}

// run executes one engine invocation, returning stdout. Failures carry
// the exit code and the tail of stderr.
func (r *Runner) run(ctx context.Context, args ...string) (string, error) {
	r.log.Debugw("Running engine", "binary", r.binary, "args", args)

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Env = os.Environ()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", errors.Newf("engine exited %d: %s", exitErr.ExitCode(), tail(stderr.String(), 400))
		}
		return "", errors.Wrap(err, "starting engine")
	}
	return stdout.String(), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// VersionString probes an engine binary for its version. It satisfies the
// tool resolver's VersionFunc.
func VersionString(ctx context.Context, binary string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, "version", "--format", "terse")
	out, err := cmd.Output()
	if err != nil {
		return "", errors.Wrapf(err, "probing engine version of %s", binary)
	}
	version := strings.TrimSpace(string(out))
	if version == "" {
		return "", errors.Newf("engine %s reported an empty version", binary)
	}
	return version, nil
}

// CountResults counts the results across all runs of a SARIF file, for
// the per-language analyze summary.
func CountResults(sarifPath string) (int, error) {
	data, err := os.ReadFile(sarifPath)
	if err != nil {
		return 0, errors.Wrap(err, "reading SARIF")
	}
	var doc struct {
		Runs []struct {
			Results []json.RawMessage `json:"results"`
		} `json:"runs"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, errors.Wrapf(err, "parsing SARIF %s", sarifPath)
	}
	total := 0
	for _, run := range doc.Runs {
		total += len(run.Results)
	}
	return total, nil
}
