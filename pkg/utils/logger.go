package utils

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

var logger *logrus.Logger

// InitLogger configures the process-wide logger. Output is one of stdout,
// stderr or file; the file output requires a path.
func InitLogger(level, format, output, file string) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	dest, err := logDestination(output, file)
	if err != nil {
		return err
	}

	l := logrus.New()
	l.SetLevel(parsed)
	l.SetFormatter(logFormatter(format))
	l.SetOutput(dest)

	logger = l
	return nil
}

func logFormatter(format string) logrus.Formatter {
	if format == "json" {
		return &logrus.JSONFormatter{TimestampFormat: timestampLayout}
	}
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: timestampLayout,
	}
}

func logDestination(output, file string) (io.Writer, error) {
	switch output {
	case "stderr":
		return os.Stderr, nil
	case "file":
		if file == "" {
			return nil, NewAppError(ErrCodeConfiguration, "Log output is 'file' but no log file path is configured")
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", file, err)
		}
		return f, nil
	default:
		return os.Stdout, nil
	}
}

// GetLogger returns the process-wide logger, bootstrapping a default one
// when InitLogger has not run yet (tests, early init paths)
func GetLogger() *logrus.Logger {
	if logger == nil {
		InitLogger("info", "text", "stdout", "")
	}
	return logger
}
