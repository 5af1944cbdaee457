package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/sirupsen/logrus"

	"github.com/hkuds/autopy/internal/config"
	"github.com/hkuds/autopy/internal/log"
	loglogrus "github.com/hkuds/autopy/internal/log/logrus"
)

// runInterruptible runs fn until it returns or the process receives
// SIGINT or SIGTERM, in which case fn's context is cancelled.
func runInterruptible(ctx context.Context, logger log.Logger, fn func(ctx context.Context) error) error {
	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				logger.Infof("Termination signal received")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Command.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				return fn(ctx)
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

// runLog is the per-run log file.
type runLog struct {
	Logger log.Logger
	Path   string
	file   *os.File
}

func (l *runLog) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// logFileName returns the run log name for t, autopy_YYYYMMDD_HHMMSS.log.
func logFileName(t time.Time) string {
	return "autopy_" + t.Format("20060102_150405") + ".log"
}

// openRunLog creates a timestamped log file in the configured log directory.
// With debug set, lines are mirrored to console at debug level.
func openRunLog(cfg *config.Config, debug bool, console io.Writer) (*runLog, error) {
	dir := cfg.LogDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(dir, logFileName(time.Now()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &runLog{
		Logger: newLogger(cfg.Log, debug, f, console),
		Path:   path,
		file:   f,
	}, nil
}

func newLogger(cfg config.LogConfig, debug bool, out, console io.Writer) log.Logger {
	logrusLog := logrus.New()
	logrusLog.Out = out
	if debug && console != nil {
		logrusLog.Out = io.MultiWriter(out, console)
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if debug {
		level = logrus.DebugLevel
	}
	logrusLog.SetLevel(level)

	switch cfg.Format {
	case "text":
		logrusLog.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	default:
		logrusLog.SetFormatter(&logrus.JSONFormatter{})
	}

	logger := loglogrus.NewLogrus(logrus.NewEntry(logrusLog)).WithValues(log.Kv{
		"version": Version,
	})
	logger.Debugf("Debug level is enabled")

	return logger
}
