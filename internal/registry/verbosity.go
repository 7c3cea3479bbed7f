package registry

import "log/slog"

// DefaultVerbosity is the run threshold when configuration sets none.
const DefaultVerbosity = 3

// LevelFromVerbosity maps the configuration scale (0 critical, 1 error,
// 2 warn, 3 info, 4 debug; higher is chattier) onto slog levels.
func LevelFromVerbosity(vl int) slog.Level {
	return slog.Level((DefaultVerbosity - vl) * 4)
}

// VerbosityFromLevel is the inverse of LevelFromVerbosity.
func VerbosityFromLevel(l slog.Level) int {
	return DefaultVerbosity - int(l)/4
}
