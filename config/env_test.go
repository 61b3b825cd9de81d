package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportVariable(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "env")
	t.Setenv(EnvFile, envFile)
	t.Setenv("SCANFORGE_TEST_EXPORT", "")

	require.NoError(t, ExportVariable("SCANFORGE_TEST_EXPORT", "value-1"))

	// Visible in the current process immediately.
	assert.Equal(t, "value-1", os.Getenv("SCANFORGE_TEST_EXPORT"))

	// Appended to the handoff file for later stage processes.
	data, err := os.ReadFile(envFile)
	require.NoError(t, err)
	assert.Equal(t, "SCANFORGE_TEST_EXPORT=value-1\n", string(data))

	// Appends accumulate.
	require.NoError(t, ExportVariable("SCANFORGE_OTHER", "x"))
	data, err = os.ReadFile(envFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "SCANFORGE_OTHER=x\n")
}

func TestExportVariableRejectsNewlines(t *testing.T) {
	assert.Error(t, ExportVariable("SCANFORGE_BAD", "a\nb"))
}

func TestExportVariableWithoutHandoffFile(t *testing.T) {
	t.Setenv(EnvFile, "")
	t.Setenv("SCANFORGE_NO_FILE", "")
	require.NoError(t, ExportVariable("SCANFORGE_NO_FILE", "v"))
	assert.Equal(t, "v", os.Getenv("SCANFORGE_NO_FILE"))
}

func TestAutobuildHandoff(t *testing.T) {
	t.Setenv(EnvFile, "")
	t.Setenv("SCANFORGE_DID_AUTOBUILD_GO", "")

	assert.False(t, DidAutobuild(LanguageGo))
	require.NoError(t, MarkAutobuildDone(LanguageGo))
	assert.True(t, DidAutobuild(LanguageGo))
	assert.False(t, DidAutobuild(LanguageJava))
}

func TestJobRunIDAndWorkflowStartedAt(t *testing.T) {
	t.Setenv(EnvJobRunID, "run-abc")
	t.Setenv(EnvWorkflowStartedAt, "2026-08-26T10:00:00Z")
	assert.Equal(t, "run-abc", JobRunID())
	assert.Equal(t, "2026-08-26T10:00:00Z", WorkflowStartedAt())
}
