// Package rxlog provides the slog.Logger used inside rxgo.
// The default logger is built from environment variables, like:
//
//	RXGO_LOG_LEVEL=debug RXGO_LOG_FORMAT=json go test ./...
//
// rxlog allows to call log api directly:
//
//	rxlog.Debug("connected", "id", id)
//	rxlog.Error("scheduled action panicked", err, "scheduler", "pool")
package rxlog

import (
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/caarlos0/env/v6"
	"gopkg.in/natefinch/lumberjack.v2"
)

var defaultLogger atomic.Pointer[slog.Logger]

func init() {
	defaultLogger.Store(Default())
}

// SetDefault set global logger.
func SetDefault(logger *slog.Logger) {
	if logger == nil {
		logger = Default()
	}
	defaultLogger.Store(logger)
}

// Logger returns the global logger.
func Logger() *slog.Logger { return defaultLogger.Load() }

// Debug logs a message at debug level.
func Debug(msg string, keyvals ...any) {
	Logger().Debug(msg, keyvals...)
}

// Info logs a message at info level.
func Info(msg string, keyvals ...any) {
	Logger().Info(msg, keyvals...)
}

// Warn logs a message at warn level.
func Warn(msg string, keyvals ...any) {
	Logger().Warn(msg, keyvals...)
}

// Error logs a message at error level, err is attached as the "err" attribute.
func Error(msg string, err error, keyvals ...any) {
	Logger().Error(msg, append([]any{"err", err}, keyvals...)...)
}

// Config is the config of the logger, the config is from environment.
type Config struct {
	// Verbose indicates if logger log code line.
	Verbose bool `env:"RXGO_LOG_VERBOSE" envDefault:"false"`

	// the log level, It's one of `debug`, `info`, `warn`, `error`
	Level string `env:"RXGO_LOG_LEVEL" envDefault:"warn"`

	// log output file path, It's stdout if not set.
	Output string `env:"RXGO_LOG_OUTPUT"`

	// error log output file path, It's stderr if not set.
	ErrorOutput string `env:"RXGO_LOG_ERROR_OUTPUT"`

	// text or json.
	Format string `env:"RXGO_LOG_FORMAT" envDefault:"text"`

	// DisableTime disable time key.
	DisableTime bool `env:"RXGO_LOG_DISABLE_TIME" envDefault:"false"`

	// MaxSize is the size in megabytes of a log file before it gets rotated.
	MaxSize int `env:"RXGO_LOG_MAX_SIZE" envDefault:"100"`

	// MaxBackups is the number of rotated files to keep, 0 keeps all of them.
	MaxBackups int `env:"RXGO_LOG_MAX_BACKUPS" envDefault:"3"`
}

// Default returns a slog.Logger according to environment.
// A malformed environment falls back to the built-in defaults.
func Default() *slog.Logger {
	conf, err := ParseConfig()
	logger := NewFromConfig(conf)
	if err != nil {
		logger.Warn("invalid rxgo log environment, using defaults", "err", err)
	}
	return logger
}

// ParseConfig reads Config from environment.
func ParseConfig() (Config, error) {
	var conf Config
	if err := env.Parse(&conf); err != nil {
		return Config{Level: "warn", Format: "text", MaxSize: 100, MaxBackups: 3}, err
	}
	return conf, nil
}

// NewFromConfig returns a slog.Logger according to conf.
func NewFromConfig(conf Config) *slog.Logger {
	return slog.New(NewHandlerFromConfig(conf))
}

func parseToWriter(conf Config, path string, defaultWriter io.Writer) io.Writer {
	if path == "" {
		return defaultWriter
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    conf.MaxSize,
		MaxBackups: conf.MaxBackups,
	}
}

func parseToSlogLevel(stringLevel string) slog.Level {
	var level = slog.LevelWarn
	switch strings.ToLower(stringLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return level
}
