package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/lbrossard/keeptouch/internal/config"
	"github.com/lbrossard/keeptouch/internal/engine"
	"github.com/lbrossard/keeptouch/internal/ics"
	"github.com/lbrossard/keeptouch/internal/notify"
	"github.com/lbrossard/keeptouch/internal/report"
	"github.com/lbrossard/keeptouch/internal/server"
	"github.com/lbrossard/keeptouch/internal/source"
	"github.com/lbrossard/keeptouch/internal/store/sqlite"
	"github.com/lbrossard/keeptouch/internal/worker"
)

// main delegates execution to runMain so that deferred function calls (like
// closing log files) run before the process terminates. os.Exit() does not
// run defers, so an integer code is returned first.
func main() {
	os.Exit(runMain())
}

// runMain manages the application lifecycle, argument parsing, and exit codes.
func runMain() int {
	showVersion := flag.Bool(config.FlagVersion, false, config.FlagDescVersion)
	debugMode := flag.Bool(config.FlagDebug, false, config.FlagDescDebug)
	settingsPath := flag.String(config.FlagConfig, config.DefaultSettings, config.FlagDescConfig)
	runOnce := flag.Bool(config.FlagOnce, false, config.FlagDescOnce)
	flag.Parse()

	if *showVersion {
		printVersion()
		return config.ExitCodeSuccess
	}

	// Structured logging (slog) is configured early to capture startup issues.
	logCloser := setupLogging(*debugMode)
	if logCloser != nil {
		defer func() {
			_ = logCloser.Close() // Best effort close
		}()
	}

	// Root context cancels on SIGINT (Ctrl+C) or SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logStartupInfo()

	if err := run(ctx, *settingsPath, *runOnce); err != nil && ctx.Err() == nil {
		slog.Error(config.ErrAppFailed,
			config.LogKeyComponent, config.CompMain,
			config.LogKeyError, err,
		)
		return config.ExitCodeError
	}

	slog.Info(config.MsgAppStop, config.LogKeyComponent, config.CompMain)
	return config.ExitCodeSuccess
}

// run loads settings, wires dependencies, and starts the worker and server.
func run(ctx context.Context, settingsPath string, runOnce bool) error {
	settings, err := config.LoadSettings(settingsPath)
	if err != nil {
		return err
	}

	storeOpts := []sqlite.Option{}
	if settings.Store.HardDelete {
		storeOpts = append(storeOpts, sqlite.WithHardDelete())
	}
	store, err := sqlite.New(settings.Store.Path, storeOpts...)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	src := &source.VCardSource{
		Config: source.Config{
			Mode:      settings.Source.Mode,
			LocalPath: settings.Source.Path,
			WebURL:    settings.Source.URL,
			WebUser:   settings.Source.Username,
			WebPass:   settings.Source.Password,
		},
		Fetcher: source.NewHTTPFetcher(),
	}

	formatter := report.NewFormatter(settings.Report.Language)

	var notifier notify.Notifier
	if settings.Report.WebhookURL != "" {
		client, err := notify.NewWebhookClient(settings.Report.WebhookURL)
		if err != nil {
			return err
		}
		notifier = client
	}

	w := &worker.Worker{
		Source:    src,
		Store:     store,
		Clock:     engine.RealClock{},
		Formatter: formatter,
		Builder: &ics.Builder{
			ReminderTrigger: settings.Reminder.Trigger,
			FormatSummary:   formatter.EventSummary,
		},
		Notifier:      notifier,
		Channel:       settings.Report.Channel,
		Interval:      settings.Interval(),
		Concurrency:   settings.Sync.Concurrency,
		RecordTimeout: settings.RecordTimeout(),
		YearMetFloor:  settings.Sync.YearMetFloor,
	}

	if runOnce {
		result, err := w.SyncOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("synced: %d inserted, %d updated, %d deleted, %d failed\n",
			result.Inserted, result.Updated, result.Deleted, result.Failed())
		text, err := w.Render(ctx, report.KindUpcoming)
		if err != nil {
			return err
		}
		fmt.Print(text)
		return nil
	}

	srv := server.New(settings.Server.Port, w)
	w.Calendar = srv

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error { return w.Run(gctx) })
	return g.Wait()
}

// printVersion outputs the build information to stdout and exits.
func printVersion() {
	fmt.Printf(config.MsgVersionOutput,
		config.AppName,
		config.Version,
		runtime.GOOS,
		runtime.GOARCH,
	)
}

// logStartupInfo logs environment details useful for debugging.
func logStartupInfo() {
	slog.Info(config.MsgAppStarting,
		config.LogKeyComponent, config.CompMain,
		slog.Group(config.LogKeyBuild,
			slog.String(config.LogKeyApp, config.AppName),
			slog.String(config.LogKeyVersion, config.Version),
			slog.String(config.LogKeyGoVer, runtime.Version()),
		),
		slog.Group(config.LogKeyEnv,
			slog.String(config.LogKeyOS, runtime.GOOS),
			slog.String(config.LogKeyArch, runtime.GOARCH),
			slog.Int(config.LogKeyPID, os.Getpid()),
		),
	)
}

// setupLogging configures the default slog logger.
func setupLogging(debugMode bool) io.Closer {
	var writers []io.Writer
	var logFile *os.File

	// 1. Always write to Stdout.
	writers = append(writers, os.Stdout)

	// 2. Attempt to set up a file writer in the user's cache directory.
	if logPath, err := getLogFilePath(); err == nil {
		// O_TRUNC resets logs on restart to prevent indefinite growth.
		f, err := os.OpenFile(logPath, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, config.FilePermUserRW)
		if err == nil {
			writers = append(writers, f)
			logFile = f
		} else {
			fmt.Fprintf(os.Stderr, config.MsgLogWarning, config.ErrLogFile, logPath, err)
		}
	}

	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: debugMode,
	}

	logger := slog.New(slog.NewJSONHandler(io.MultiWriter(writers...), opts))
	slog.SetDefault(logger)

	if logFile == nil {
		return nil
	}
	return logFile
}

// getLogFilePath determines the platform-specific cache directory for logs.
func getLogFilePath() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrCacheDir, err)
	}

	appDir := filepath.Join(cacheDir, config.AppID)

	if err := os.MkdirAll(appDir, config.DirPermUserRWX); err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrCreateDir, err)
	}

	return filepath.Join(appDir, config.LogFileName), nil
}
