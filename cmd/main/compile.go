package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/natefinch/atomic"
	"github.com/pagestudiocms/pagestudio-template-development-server/pkg/templating"
)

// Compiler renders every layout of a theme into an output directory.
type Compiler struct {
	tm     *templating.TemplateManager
	dest   string
	logger *slog.Logger
}

// CompileResult describes one compiled layout.
type CompileResult struct {
	Layout string
	Path   string
	Size   int
	Err    error
}

// CompileSummary is the outcome of a full compile.
type CompileSummary struct {
	Results  []CompileResult
	Bytes    uint64
	Failed   int
	Duration time.Duration
}

// NewCompiler creates a Compiler writing into dest.
func NewCompiler(tm *templating.TemplateManager, dest string, logger *slog.Logger) *Compiler {
	return &Compiler{tm: tm, dest: dest, logger: logger}
}

// CompileAll renders every loaded layout to <dest>/<layout>.html. A layout
// that fails to render is reported in the summary and does not stop the
// others.
func (c *Compiler) CompileAll() CompileSummary {
	start := time.Now()
	var summary CompileSummary
	for _, name := range c.tm.GetLayoutNames() {
		res := c.Compile(name)
		if res.Err != nil {
			summary.Failed++
			c.logger.Error("Failed to compile layout", "layout", name, "error", res.Err)
		} else {
			summary.Bytes += uint64(res.Size)
		}
		summary.Results = append(summary.Results, res)
	}
	summary.Duration = time.Since(start)
	c.logger.Info("Compile finished",
		"layouts", len(summary.Results),
		"failed", summary.Failed,
		"size", humanize.Bytes(summary.Bytes),
		"duration", summary.Duration.Round(time.Millisecond))
	return summary
}

// Compile renders a single layout and writes it atomically.
func (c *Compiler) Compile(name string) CompileResult {
	res := CompileResult{Layout: name, Path: filepath.Join(c.dest, filepath.FromSlash(name)+".html")}

	var buf bytes.Buffer
	if err := c.tm.Execute(&buf, name, nil); err != nil {
		res.Err = err
		return res
	}
	res.Size = buf.Len()

	if err := os.MkdirAll(filepath.Dir(res.Path), 0o755); err != nil {
		res.Err = fmt.Errorf("failed to create output directory: %w", err)
		return res
	}
	if err := atomic.WriteFile(res.Path, &buf); err != nil {
		res.Err = fmt.Errorf("failed to write %s: %w", res.Path, err)
		return res
	}
	c.logger.Debug("Compiled layout", "layout", name, "path", res.Path, "size", humanize.Bytes(uint64(res.Size)))
	return res
}

// String renders the summary as a human-readable report.
func (s CompileSummary) String() string {
	var b bytes.Buffer
	for _, r := range s.Results {
		if r.Err != nil {
			fmt.Fprintf(&b, "  FAIL  %-30s %v\n", r.Layout, r.Err)
			continue
		}
		fmt.Fprintf(&b, "  ok    %-30s %s\n", r.Layout, humanize.Bytes(uint64(r.Size)))
	}
	fmt.Fprintf(&b, "%d layouts, %d failed, %s written in %s\n",
		len(s.Results), s.Failed, humanize.Bytes(s.Bytes), s.Duration.Round(time.Millisecond))
	return b.String()
}
