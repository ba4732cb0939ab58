package application

import "log/slog"

const ModuleName = "drop-distribution/drop-allocation-engine"

func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}
