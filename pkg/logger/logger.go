// pkg/logger/logger.go
package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Log is the global logger instance
	Log zerolog.Logger
)

// Options configures the sinks set up by Init.
type Options struct {
	Level string
	// File enables a rotating log file next to the console output.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func init() {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = time.RFC3339Nano

	Log = zerolog.New(consoleWriter(os.Stdout)).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Caller().
		Logger()
}

func consoleWriter(out *os.File) zerolog.ConsoleWriter {
	tty := isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd())
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    !tty,
	}
}

// Init replaces the global logger. Console output goes to stdout; when
// opts.File is set, JSON lines are also written to a rotating file.
func Init(opts Options) error {
	var out io.Writer = consoleWriter(os.Stdout)

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return err
		}
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 16), // megabytes
			MaxBackups: orDefault(opts.MaxBackups, 8),
			MaxAge:     orDefault(opts.MaxAgeDays, 30), // days
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, file)
	}

	Log = zerolog.New(out).
		With().
		Timestamp().
		Caller().
		Logger()
	log.Logger = Log

	SetLevel(opts.Level)
	return nil
}

// SetLevel sets the log level
func SetLevel(levelStr string) {
	if levelStr == "" {
		levelStr = "info"
	}
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		Log.Warn().Str("level", levelStr).Msg("invalid log level, defaulting to info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	Log = Log.Level(level)
	log.Logger = log.Logger.Level(level)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
