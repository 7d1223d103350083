package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"fund-manager/internal/config"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"

// Init configures the standard logger and returns an entry tagged with the
// service name
func Init(cfg config.LoggerConfig, service string) *logrus.Entry {
	configure(logrus.StandardLogger(), cfg)
	return logrus.WithField("service", service)
}

// New builds a standalone logger from cfg
func New(cfg config.LoggerConfig) *logrus.Logger {
	l := logrus.New()
	configure(l, cfg)
	return l
}

func configure(l *logrus.Logger, cfg config.LoggerConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch cfg.Format {
	case "text":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	default:
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
		})
	}

	l.SetOutput(output(cfg))
}

func output(cfg config.LoggerConfig) io.Writer {
	if cfg.Filename == "" {
		return os.Stdout
	}

	switch cfg.Output {
	case "file":
		return fileWriter(cfg)
	case "both":
		return io.MultiWriter(os.Stdout, fileWriter(cfg))
	default:
		return os.Stdout
	}
}

// fileWriter returns a file writer with rotation
func fileWriter(cfg config.LoggerConfig) io.Writer {
	return &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
}
