// Package logging configures the process logger.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// New builds a logger writing to w at the given level and format
// ("text", "json" or "logfmt").
func New(w io.Writer, level, format string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          "opsagent",
		Level:           lvl,
	})

	switch format {
	case "json":
		logger.SetFormatter(log.JSONFormatter)
	case "logfmt":
		logger.SetFormatter(log.LogfmtFormatter)
	default:
		logger.SetFormatter(log.TextFormatter)
	}
	return logger, nil
}

// Setup installs a stderr logger as the package default and returns it.
func Setup(level, format string) (*log.Logger, error) {
	logger, err := New(os.Stderr, level, format)
	if err != nil {
		return nil, err
	}
	log.SetDefault(logger)
	return logger, nil
}
