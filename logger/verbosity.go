package logger

import "go.uber.org/zap/zapcore"

// Verbosity level constants for CLI flag counts.
//
// The stages run inside CI jobs where the default output should be quiet:
// results and errors only. Operators debugging a pipeline escalate with
// repeated -v flags.
const (
	VerbosityUser  = 0 // no flags: warnings and errors only
	VerbosityInfo  = 1 // -v: + stage progress, per-language status
	VerbosityDebug = 2 // -vv: + config resolution, feature flag decisions, timings
	VerbosityTrace = 3 // -vvv: + engine subprocess invocations, HTTP exchanges
)

// VerbosityToLevel maps verbosity flag counts (-v, -vv, ...) to zap levels.
func VerbosityToLevel(verbosity int) zapcore.Level {
	switch verbosity {
	case VerbosityUser:
		return zapcore.WarnLevel
	case VerbosityInfo:
		return zapcore.InfoLevel
	default:
		// zap has no finer levels below Debug; -vvv and beyond enable the
		// same level.
		return zapcore.DebugLevel
	}
}
