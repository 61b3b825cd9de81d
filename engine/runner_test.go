package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scanforge/scanforge/config"
)

// stubEngine writes a shell script that records its arguments, honors
// --output by writing a SARIF document, and exits with STUB_ENGINE_EXIT.
func stubEngine(t *testing.T) (binary, argsLog string) {
	t.Helper()
	dir := t.TempDir()
	argsLog = filepath.Join(dir, "args.log")
	binary = filepath.Join(dir, "engine")
	script := `#!/bin/sh
echo "$@" >> "$STUB_ENGINE_ARGS"
prev=""
for a in "$@"; do
  if [ "$prev" = "--output" ]; then
    printf '%s' '{"runs":[{"results":[{},{}]},{"results":[{}]}]}' > "$a"
  fi
  prev="$a"
done
if [ "$1" = "version" ]; then echo "  2.16.1  "; fi
if [ -n "$STUB_ENGINE_STDERR" ]; then echo "$STUB_ENGINE_STDERR" >&2; fi
exit "${STUB_ENGINE_EXIT:-0}"
`
	require.NoError(t, os.WriteFile(binary, []byte(script), 0o755))
	t.Setenv("STUB_ENGINE_ARGS", argsLog)
	return binary, argsLog
}

func newTestRunner(t *testing.T) (*Runner, string) {
	t.Helper()
	t.Setenv(config.EnvTempDir, t.TempDir())
	binary, argsLog := stubEngine(t)
	return NewRunner(binary, zap.NewNop().Sugar()), argsLog
}

func loggedArgs(t *testing.T, argsLog string) string {
	t.Helper()
	data, err := os.ReadFile(argsLog)
	require.NoError(t, err)
	return string(data)
}

func TestDatabaseInit(t *testing.T) {
	r, argsLog := newTestRunner(t)

	require.NoError(t, r.DatabaseInit(context.Background(), config.LanguageGo, "/src"))
	args := loggedArgs(t, argsLog)
	assert.Contains(t, args, "database init")
	assert.Contains(t, args, "--language go")
	assert.Contains(t, args, "--source-root /src")
	assert.Contains(t, args, "--enable-tracing", "go is a traced language")

	require.NoError(t, r.DatabaseInit(context.Background(), config.LanguagePython, "/src"))
	lines := strings.Split(strings.TrimSpace(loggedArgs(t, argsLog)), "\n")
	assert.NotContains(t, lines[1], "--enable-tracing", "python needs no build tracing")
}

func TestRunQueries(t *testing.T) {
	r, argsLog := newTestRunner(t)
	r.ExtraOptions = []string{"--threads", "4"}

	require.NoError(t, r.RunQueries(context.Background(), config.LanguageJava, []string{"java-default", "java-extended"}))
	args := loggedArgs(t, argsLog)
	assert.Contains(t, args, "java-default java-extended")
	assert.Contains(t, args, "--threads 4")

	err := r.RunQueries(context.Background(), config.LanguageJava, nil)
	assert.ErrorContains(t, err, "no query suites")
}

func TestRunSurfacesExitCodeAndStderr(t *testing.T) {
	r, _ := newTestRunner(t)
	t.Setenv("STUB_ENGINE_EXIT", "3")
	t.Setenv("STUB_ENGINE_STDERR", "database is corrupt")

	err := r.DatabaseFinalize(context.Background(), config.LanguageGo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited 3")
	assert.Contains(t, err.Error(), "database is corrupt")
}

func TestInterpret(t *testing.T) {
	t.Run("returns the SARIF it verified", func(t *testing.T) {
		r, _ := newTestRunner(t)
		path, err := r.Interpret(context.Background(), config.LanguageGo)
		require.NoError(t, err)
		assert.Equal(t, r.ResultsPath(config.LanguageGo), path)

		count, err := CountResults(path)
		require.NoError(t, err)
		assert.Equal(t, 3, count, "results are summed across runs")
	})

	t.Run("missing output is a failure despite exit 0", func(t *testing.T) {
		t.Setenv(config.EnvTempDir, t.TempDir())
		dir := t.TempDir()
		binary := filepath.Join(dir, "engine")
		require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\nexit 0\n"), 0o755))
		r := NewRunner(binary, zap.NewNop().Sugar())

		_, err := r.Interpret(context.Background(), config.LanguageGo)
		assert.ErrorContains(t, err, "wrote no SARIF")
	})
}

func TestVersionString(t *testing.T) {
	binary, _ := stubEngine(t)
	version, err := VersionString(context.Background(), binary)
	require.NoError(t, err)
	assert.Equal(t, "2.16.1", version, "whitespace is trimmed")
}
