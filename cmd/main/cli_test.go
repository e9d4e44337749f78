package main

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		want     *options
		wantExit bool
		wantCode int
	}{
		{
			name: "default command is serve",
			args: nil,
			want: &options{Command: commandServe, ConfigPath: "./config.json"},
		},
		{
			name: "serve with overrides",
			args: []string{"serve", "-config", "c.json", "-src", "theme", "-log-level", "DEBUG", "-log-format", "json"},
			want: &options{Command: commandServe, ConfigPath: "c.json", SourceDir: "theme", LogLevel: "debug", LogFormat: "json"},
		},
		{
			name: "flags without command",
			args: []string{"-src", "theme"},
			want: &options{Command: commandServe, ConfigPath: "./config.json", SourceDir: "theme"},
		},
		{
			name: "compile",
			args: []string{"compile", "-dest", "out", "-watch"},
			want: &options{Command: commandCompile, ConfigPath: "./config.json", DestDir: "out", Watch: true},
		},
		{
			name: "repl",
			args: []string{"repl", "-data", "page.yaml"},
			want: &options{Command: commandRepl, ConfigPath: "./config.json", DataFile: "page.yaml"},
		},
		{name: "help command", args: []string{"help"}, wantExit: true},
		{name: "help flag", args: []string{"compile", "-h"}, wantExit: true},
		{name: "unknown command", args: []string{"publish"}, wantCode: 2},
		{name: "flag of another command", args: []string{"serve", "-dest", "out"}, wantCode: 2},
		{name: "invalid log level", args: []string{"-log-level", "loud"}, wantCode: 2},
		{name: "invalid log format", args: []string{"-log-format", "xml"}, wantCode: 2},
		{name: "stray argument", args: []string{"compile", "extra"}, wantCode: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, exit, err := parseArgs(tt.args, io.Discard)
			if tt.wantCode != 0 {
				var exitErr *ExitError
				require.ErrorAs(t, err, &exitErr)
				assert.Equal(t, tt.wantCode, exitErr.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantExit, exit)
			if !tt.wantExit {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestOptions_Apply(t *testing.T) {
	cfg := DefaultConfig()
	opts := &options{SourceDir: "theme", LogLevel: "warn"}
	opts.apply(cfg)

	assert.Equal(t, "theme", cfg.Server.SourceDir)
	assert.Equal(t, "warn", cfg.Server.LogLevel)
	assert.Equal(t, DefaultServerConfig().DestDir, cfg.Server.DestDir)
	assert.Equal(t, "text", cfg.Server.LogFormat)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("debug", "json", &buf)
	logger.Debug("Compiled layout", "layout", "index")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "DEBUG", entry["level"])
	assert.Equal(t, "Compiled layout", entry["msg"])
	assert.Equal(t, "index", entry["layout"])

	buf.Reset()
	newLogger("bogus", "text", &buf).Debug("hidden")
	assert.Empty(t, buf.String())
}
