// Package logging wires the service log: stderr plus a size-rotated file.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/natefinch/lumberjack"

	"github.com/skyking-delivery/skytrack/internal/config"
)

// NewWriter returns the shared log sink: stderr mirrored into a rotating
// file under the configured log directory.
func NewWriter(cfg *config.LogConfig) io.Writer {
	rotating := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, "skytrack.log"),
		MaxSize:    cfg.FileMaxSizeMB,
		MaxBackups: cfg.FileMaxBackups,
		MaxAge:     cfg.FileMaxAgeDays,
	}
	return io.MultiWriter(os.Stderr, rotating)
}

// NewLogger returns a component-prefixed logger on the shared sink.
func NewLogger(w io.Writer, component string) *log.Logger {
	prefix := ""
	if component != "" {
		prefix = component + ": "
	}
	return log.New(w, prefix, log.LstdFlags|log.LUTC)
}
