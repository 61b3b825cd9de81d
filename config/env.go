package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/scanforge/scanforge/errors"
)

// Environment-variable handoffs. These carry small scalar signals across
// stage process boundaries outside the snapshot: the CI runner sources the
// file named by SCANFORGE_ENV before each later stage, the same way GitHub
// Actions handles GITHUB_ENV. Written once by an earlier stage, read-only
// thereafter.
const (
	// EnvFile names the file later stages' environments are sourced from.
	EnvFile = "SCANFORGE_ENV"

	// EnvJobRunID is the opaque correlation token generated once by init
	// and stamped onto every status report of the job.
	EnvJobRunID = "SCANFORGE_JOB_RUN_ID"

	// EnvWorkflowStartedAt is the ISO-8601 start time of the workflow.
	EnvWorkflowStartedAt = "SCANFORGE_WORKFLOW_STARTED_AT"

	// envDidAutobuildPrefix marks languages the autobuild stage already
	// built, so analyze does not build them again.
	envDidAutobuildPrefix = "SCANFORGE_DID_AUTOBUILD_"
)

// ExportVariable makes a variable visible to the current process and, via
// the SCANFORGE_ENV file, to every later stage process of the job.
func ExportVariable(name, value string) error {
	if strings.ContainsAny(value, "\n") {
		return errors.Newf("exported variable %s must not contain newlines", name)
	}
	if err := os.Setenv(name, value); err != nil {
		return errors.Wrapf(err, "setting %s", name)
	}
	envFile := os.Getenv(EnvFile)
	if envFile == "" {
		// No CI handoff file configured; same-process visibility is all we
		// can offer (fine for single-process runs and tests).
		return nil
	}
	f, err := os.OpenFile(envFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "opening env handoff file %s", envFile)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s=%s\n", name, value); err != nil {
		return errors.Wrapf(err, "appending %s to env handoff file", name)
	}
	return nil
}

// JobRunID returns the job-run correlation id from the environment, or ""
// when init has not exported one.
func JobRunID() string {
	return os.Getenv(EnvJobRunID)
}

// WorkflowStartedAt returns the workflow start timestamp from the
// environment, or "" when unset.
func WorkflowStartedAt() string {
	return os.Getenv(EnvWorkflowStartedAt)
}

// didAutobuildVar returns the handoff variable name for a language.
func didAutobuildVar(lang Language) string {
	return envDidAutobuildPrefix + strings.ToUpper(string(lang))
}

// DidAutobuild reports whether the autobuild stage already ran for lang.
func DidAutobuild(lang Language) bool {
	return os.Getenv(didAutobuildVar(lang)) == "true"
}

// MarkAutobuildDone records that autobuild ran for lang, for the analyze
// stage to observe.
func MarkAutobuildDone(lang Language) error {
	return ExportVariable(didAutobuildVar(lang), "true")
}
