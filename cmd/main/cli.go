package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	commandServe   = "serve"
	commandCompile = "compile"
	commandRepl    = "repl"
)

// ExitError is an error that carries a specific process exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// options are the parsed command-line arguments.
type options struct {
	Command    string
	ConfigPath string
	SourceDir  string
	DestDir    string
	DataFile   string
	LogLevel   string
	LogFormat  string
	Watch      bool
}

// parseArgs processes command-line arguments. It returns the options, a
// boolean indicating if the program should exit cleanly, or an ExitError.
func parseArgs(args []string, output io.Writer) (*options, bool, error) {
	opts := &options{Command: commandServe}
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		opts.Command = args[0]
		args = args[1:]
	}
	switch opts.Command {
	case commandServe, commandCompile, commandRepl:
	case "help":
		printUsage(output, nil)
		return nil, true, nil
	default:
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q", opts.Command)}
	}

	flagSet := flag.NewFlagSet("pagestudio "+opts.Command, flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() { printUsage(output, flagSet) }

	flagSet.StringVar(&opts.ConfigPath, "config", "./config.json", "Path to the configuration file.")
	flagSet.StringVar(&opts.SourceDir, "src", "", "Theme source directory. Overrides server_config.source_dir.")
	flagSet.StringVar(&opts.LogLevel, "log-level", "", "Logging level: 'debug', 'info', 'warn' or 'error'.")
	flagSet.StringVar(&opts.LogFormat, "log-format", "", "Log output format: 'text' or 'json'.")
	switch opts.Command {
	case commandCompile:
		flagSet.StringVar(&opts.DestDir, "dest", "", "Output directory. Overrides server_config.dest_dir.")
		flagSet.BoolVar(&opts.Watch, "watch", false, "Keep running and recompile when the source changes.")
	case commandRepl:
		flagSet.StringVar(&opts.DataFile, "data", "", "JSON or YAML file used as the context of every line.")
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if flagSet.NArg() > 0 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unexpected argument %q", flagSet.Arg(0))}
	}

	opts.LogLevel = strings.ToLower(opts.LogLevel)
	switch opts.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	opts.LogFormat = strings.ToLower(opts.LogFormat)
	if opts.LogFormat != "" && opts.LogFormat != "text" && opts.LogFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	return opts, false, nil
}

// apply overlays the command-line overrides on the loaded configuration.
func (o *options) apply(cfg *Config) {
	if o.SourceDir != "" {
		cfg.Server.SourceDir = o.SourceDir
	}
	if o.DestDir != "" {
		cfg.Server.DestDir = o.DestDir
	}
	if o.LogLevel != "" {
		cfg.Server.LogLevel = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Server.LogFormat = o.LogFormat
	}
}

func printUsage(output io.Writer, flagSet *flag.FlagSet) {
	fmt.Fprint(output, `
PageStudio template development server.

Usage:
  pagestudio [serve|compile|repl] [options]

Commands:
  serve     Preview layouts over HTTP and expose the management API (default).
  compile   Render every layout into the output directory.
  repl      Evaluate template lines interactively.

Options:
`)
	if flagSet != nil {
		flagSet.PrintDefaults()
	}
}

// newLogger creates a logger for the given level and format names. Unknown
// names fall back to info and text.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if formatStr == "json" {
		return slog.New(slog.NewJSONHandler(outW, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(outW, handlerOpts))
}

// loadOptionsConfig loads the configuration named by opts and applies the
// command-line overrides.
func loadOptionsConfig(opts *options) (*ConfigManager, error) {
	cm, err := NewConfigManager(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	opts.apply(cm.config)
	cm.SetLogger(newLogger(cm.config.Server.LogLevel, cm.config.Server.LogFormat, os.Stderr))
	return cm, nil
}
