package logger

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// zlogger adapts a zerolog.Logger to the Logger interface so call sites
// never need to import zerolog directly.
type zlogger struct {
	z zerolog.Logger
}

// New returns a Logger backed by zerolog at info level, writing
// human-readable console output to stderr.
func New() Logger {
	return NewWithLevel("info")
}

// NewWithLevel returns a zerolog-backed Logger at the given level
// ("trace", "debug", "info", "warn", "error", "fatal", "panic").
// An unrecognized level falls back to info.
func NewWithLevel(level string) Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	z := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return &zlogger{z: z}
}

func (l *zlogger) Panicln(v ...any)               { l.z.Panic().Msg(fmt.Sprint(v...)) }
func (l *zlogger) Panicf(format string, v ...any) { l.z.Panic().Msgf(format, v...) }
func (l *zlogger) Fatalln(v ...any)               { l.z.Fatal().Msg(fmt.Sprint(v...)) }
func (l *zlogger) Fatalf(format string, v ...any) { l.z.Fatal().Msgf(format, v...) }
func (l *zlogger) Errorln(v ...any)               { l.z.Error().Msg(fmt.Sprint(v...)) }
func (l *zlogger) Errorf(format string, v ...any) { l.z.Error().Msgf(format, v...) }
func (l *zlogger) Warnln(v ...any)                { l.z.Warn().Msg(fmt.Sprint(v...)) }
func (l *zlogger) Warnf(format string, v ...any)  { l.z.Warn().Msgf(format, v...) }
func (l *zlogger) Infoln(v ...any)                { l.z.Info().Msg(fmt.Sprint(v...)) }
func (l *zlogger) Infof(format string, v ...any)  { l.z.Info().Msgf(format, v...) }
func (l *zlogger) Debugln(v ...any)               { l.z.Debug().Msg(fmt.Sprint(v...)) }
func (l *zlogger) Debugf(format string, v ...any) { l.z.Debug().Msgf(format, v...) }
func (l *zlogger) Traceln(v ...any)               { l.z.Trace().Msg(fmt.Sprint(v...)) }
func (l *zlogger) Tracef(format string, v ...any) { l.z.Trace().Msgf(format, v...) }
