package lgr

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/natefinch/lumberjack"

	"github.com/mpromonet/gin-spotdetect/internal/config"
)

// Logger is the process wide logger. It writes to stdout until Init is called.
var Logger = slog.New(slog.NewTextHandler(os.Stdout, nil))

// Init sends logs to stdout and to a rotated log file.
func Init(cfg config.LogConfig) io.Closer {
	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB, // MB
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays, // days
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(os.Stdout, rotated)
		closer = rotated
	}

	Logger = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	}))
	slog.SetDefault(Logger)
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Err renders err in detail form, so the frames xerrors recorded along the
// chain reach the log and not only the message.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", fmt.Sprintf("%+v", err))
}

// GinLogger replaces gin's default access log. userOf extracts the session
// user name and may be nil.
func GinLogger(userOf func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
			slog.String("client", c.ClientIP()),
		}
		if userOf != nil {
			if user := userOf(c); user != "" {
				attrs = append(attrs, slog.String("user", user))
			}
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= 500:
			Logger.Error("request", attrs...)
		case c.Writer.Status() >= 400:
			Logger.Warn("request", attrs...)
		default:
			Logger.Info("request", attrs...)
		}
	}
}
