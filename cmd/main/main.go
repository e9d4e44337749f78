package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pagestudiocms/pagestudio-template-development-server/pkg/datastore"
	"github.com/pagestudiocms/pagestudio-template-development-server/pkg/templating"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	if err := execute(os.Args[1:], os.Stdout); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// execute parses the arguments and runs the selected command.
func execute(args []string, out io.Writer) error {
	opts, exit, err := parseArgs(args, out)
	if err != nil || exit {
		return err
	}
	switch opts.Command {
	case commandCompile:
		return runCompile(opts, out)
	case commandRepl:
		return runRepl(opts, out)
	}
	return runServe(opts)
}

// theme is everything a command needs to render layouts.
type theme struct {
	db    *sql.DB
	store *datastore.Store
	tm    *templating.TemplateManager
}

// openTheme opens the content store and loads the theme from the configured
// source directory.
func openTheme(cfg Config, logger *slog.Logger) (*theme, error) {
	db, err := initDB(cfg.Server.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err = datastore.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup document schema: %w", err)
	}
	store, err := datastore.New(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create document store: %w", err)
	}
	store.SetLogger(logger)

	tm, err := templating.NewTemplateManager(logger, store, cfg.Templates, cfg.Server.SourceDir)
	if err != nil {
		store.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to create template manager: %w", err)
	}
	return &theme{db: db, store: store, tm: tm}, nil
}

func (t *theme) Close(logger *slog.Logger) {
	t.tm.Close()
	t.store.Close()
	logger.Info("Closing database connection.")
	if err := t.db.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
	}
}

func runServe(opts *options) error {
	baseLogger := newLogger("info", "text", os.Stderr)
	actionChan := make(chan string, 1)

	go func() {
		osSignalChan := make(chan os.Signal, 1)
		signal.Notify(osSignalChan, syscall.SIGINT, syscall.SIGTERM)
		<-osSignalChan
		baseLogger.Info("OS signal received, initiating shutdown.")
		actionChan <- actionShutdown
	}()

	for {
		action, err := run(opts, actionChan)
		if err != nil {
			return err
		}
		if action != actionRestart {
			break
		}
		baseLogger.Info("--- Server Restarting ---")
	}

	baseLogger.Info("PageStudio has shut down.")
	return nil
}

// run hosts both servers, and returns whenever the server is shut down or restarted.
func run(opts *options, actionChan chan string) (string, error) {
	cm, err := loadOptionsConfig(opts)
	if err != nil {
		return "", err
	}
	cfg := cm.Get()
	logger := newLogger(cfg.Server.LogLevel, cfg.Server.LogFormat, os.Stderr)
	logger.Info("Starting server cycle...", "version", Version, "source", cfg.Server.SourceDir)

	th, err := openTheme(cfg, logger)
	if err != nil {
		return "", err
	}
	defer th.Close(logger)
	cm.SetTemplateManager(th.tm)

	server := NewServer(cm, logger, th.store, th.tm, actionChan)
	previewHttpServer := &http.Server{Addr: cfg.Server.ServerAddr, Handler: server.previewMux}
	apiHttpServer := &http.Server{Addr: cfg.Server.ApiAddr, Handler: server.apiMux}

	go func() {
		logger.Info("Starting api server", "address", apiHttpServer.Addr)
		if err := apiHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Api server failed", "error", err)
		}
	}()

	go func() {
		logger.Info("Starting preview server", "address", previewHttpServer.Addr)
		if err := previewHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Preview server failed", "error", err)
		}
	}()

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if cfg.Server.WatchIntervalMs > 0 {
		compiler := NewCompiler(th.tm, cfg.Server.DestDir, logger)
		w := NewWatcher(cfg.Server.SourceDir, time.Duration(cfg.Server.WatchIntervalMs)*time.Millisecond, logger, func() {
			rebuild(th.tm, compiler, logger)
		})
		go w.Run(watchCtx)
	}

	action := <-actionChan // Block here until API or OS signal sends an action.

	logger.Info("Stopping servers for " + action + "...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = apiHttpServer.Shutdown(ctx); err != nil {
		logger.Error("Api server shutdown failed", "error", err)
	}
	if err = previewHttpServer.Shutdown(ctx); err != nil {
		logger.Error("Preview server shutdown failed", "error", err)
	}
	logger.Info("HTTP servers stopped.")
	return action, nil
}

// rebuild reloads the theme and recompiles every layout.
func rebuild(tm *templating.TemplateManager, compiler *Compiler, logger *slog.Logger) {
	if err := tm.Refresh(); err != nil {
		logger.Error("Failed to reload theme", "error", err)
		return
	}
	compiler.CompileAll()
}

func runCompile(opts *options, out io.Writer) error {
	cm, err := loadOptionsConfig(opts)
	if err != nil {
		return err
	}
	cfg := cm.Get()
	logger := newLogger(cfg.Server.LogLevel, cfg.Server.LogFormat, os.Stderr)

	th, err := openTheme(cfg, logger)
	if err != nil {
		return err
	}
	defer th.Close(logger)

	compiler := NewCompiler(th.tm, cfg.Server.DestDir, logger)
	summary := compiler.CompileAll()
	fmt.Fprint(out, summary.String())

	if opts.Watch {
		interval := time.Duration(cfg.Server.WatchIntervalMs) * time.Millisecond
		if interval <= 0 {
			interval = time.Second
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		NewWatcher(cfg.Server.SourceDir, interval, logger, func() {
			rebuild(th.tm, compiler, logger)
		}).Run(ctx)
		return nil
	}

	if summary.Failed > 0 {
		return &ExitError{Code: 1, Message: fmt.Sprintf("%d of %d layouts failed to compile", summary.Failed, len(summary.Results))}
	}
	return nil
}
