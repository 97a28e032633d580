// Package logging configures the global zerolog logger with dual sinks: a
// console writer on stderr and a rotating file under the data directory.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Init sets up log.Logger. logDir may be empty, in which case only the
// console sink is attached.
func Init(verbose bool, logDir string) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	isTerminal := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    !isTerminal,
	}

	var sink io.Writer = console
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			log.Logger = zerolog.New(console).With().Timestamp().Logger()
			log.Warn().Err(err).Str("path", logDir).Msg("could not create log directory, console only")
			return
		}
		file := &lumberjack.Logger{
			Filename:   filepath.Join(logDir, "ecfr-wordstats.log"),
			MaxSize:    16, // megabytes
			MaxBackups: 8,
			MaxAge:     90, // days
			Compress:   true,
		}
		sink = zerolog.MultiLevelWriter(console, file)
	}

	log.Logger = zerolog.New(sink).With().Timestamp().Logger()
}
