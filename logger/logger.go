// Package logger provides the global structured logger for scanforge.
//
// Every stage process initializes the logger once at entry. Human-readable
// console output goes to stderr (stdout is reserved for stage results);
// JSON output is available for CI systems that collect structured logs.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the global logger instance, shared by all packages.
var Logger *zap.SugaredLogger

func init() {
	// Safe no-op logger at package load time so packages that log before
	// Initialize() runs don't panic.
	Logger = zap.NewNop().Sugar()
}

// Initialize sets up the global logger. Verbosity is the count of -v flags
// on the command line; see verbosity.go for the mapping to zap levels.
func Initialize(jsonOutput bool, verbosity int) error {
	level := VerbosityToLevel(verbosity)

	var zapLogger *zap.Logger
	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		cfg.OutputPaths = []string{"stderr"}
		cfg.ErrorOutputPaths = []string{"stderr"}
		built, err := cfg.Build()
		if err != nil {
			return err
		}
		zapLogger = built
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		zapLogger = zap.New(
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(encCfg),
				zapcore.AddSync(os.Stderr),
				level,
			),
		)
	}

	Logger = zapLogger.Sugar()
	return nil
}

// Cleanup flushes any buffered log entries. Called on process exit.
func Cleanup() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}
