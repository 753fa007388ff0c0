package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"ems3/internal/config"

	"gopkg.in/natefinch/lumberjack.v2"
)

var logCloser io.Closer

// Init builds the process logger and makes it the slog and log default.
func Init(cfg config.LogConfig) (*slog.Logger, error) {
	output, closer := buildOutput(cfg)
	logCloser = closer

	options := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(output, options)
	} else {
		handler = slog.NewTextHandler(output, options)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	log.SetFlags(0)
	log.SetOutput(slogWriter{logger: logger})
	return logger, nil
}

// Close flushes and closes the log file, if any.
func Close() error {
	if logCloser != nil {
		return logCloser.Close()
	}
	return nil
}

type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}
	w.logger.Info(msg)
	return len(p), nil
}

func buildOutput(cfg config.LogConfig) (io.Writer, io.Closer) {
	var console io.Writer = os.Stderr
	if cfg.Quiet {
		console = io.Discard
	}
	if strings.TrimSpace(cfg.File) == "" {
		return console, nil
	}

	fileLogger := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	if cfg.Quiet {
		return fileLogger, fileLogger
	}
	return io.MultiWriter(console, fileLogger), fileLogger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// CronLogger adapts slog to the cron library's logger interface.
type CronLogger struct {
	Logger *slog.Logger
}

func NewCronLogger(logger *slog.Logger) CronLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return CronLogger{Logger: logger}
}

func (l CronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Logger.Debug(msg, keysAndValues...)
}

func (l CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Logger.Error(msg, append(keysAndValues, "err", err)...)
}
