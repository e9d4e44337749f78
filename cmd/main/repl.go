package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/pagestudiocms/pagestudio-template-development-server/pkg/lex"
	"github.com/pagestudiocms/pagestudio-template-development-server/pkg/templating"
)

const replHelp = `Every line is rendered as a template against the current data.
  :load <file>   render a template file
  :data          print the current data
  :data <file>   replace the data with a JSON or YAML file
  :callbacks     list the registered callbacks
  :help          show this help
  :quit          leave
`

// REPL evaluates template lines against a data context.
type REPL struct {
	tm   *templating.TemplateManager
	data any
}

// NewREPL creates a REPL rendering through tm. dataFile, when not empty, is
// loaded as the initial context.
func NewREPL(tm *templating.TemplateManager, dataFile string) (*REPL, error) {
	r := &REPL{tm: tm, data: lex.NewMap()}
	if dataFile != "" {
		if err := r.loadData(dataFile); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *REPL) loadData(path string) error {
	v, err := templating.LoadDataFile(path)
	if err != nil {
		return fmt.Errorf("failed to load data file: %w", err)
	}
	r.data = v
	return nil
}

// Eval runs one line of input. It returns the text to print and whether the
// session should end.
func (r *REPL) Eval(line string) (string, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false, nil
	}
	if !strings.HasPrefix(line, ":") {
		return r.render(line)
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case ":quit", ":q", ":exit":
		return "", true, nil
	case ":help":
		return replHelp, false, nil
	case ":callbacks":
		return strings.Join(r.tm.GetCallbackNames(), "\n") + "\n", false, nil
	case ":data":
		if arg != "" {
			if err := r.loadData(arg); err != nil {
				return "", false, err
			}
		}
		out, err := json.MarshalIndent(r.data, "", "  ")
		if err != nil {
			return "", false, err
		}
		return string(out) + "\n", false, nil
	case ":load":
		if arg == "" {
			return "", false, errors.New(":load needs a file name")
		}
		text, err := os.ReadFile(filepath.Clean(arg))
		if err != nil {
			return "", false, err
		}
		return r.render(string(text))
	}
	return "", false, fmt.Errorf("unknown command %s, try :help", cmd)
}

func (r *REPL) render(text string) (string, bool, error) {
	var buf bytes.Buffer
	if err := r.tm.ExecuteTemplateString(&buf, text, r.data); err != nil {
		return "", false, err
	}
	out := buf.String()
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out, false, nil
}

// RunInteractive reads lines with line editing and history until :quit,
// Ctrl+C on an empty line, or EOF.
func (r *REPL) RunInteractive(out io.Writer) error {
	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".pagestudio_history")
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "lex> ",
		HistoryFile:     historyFile,
		HistoryLimit:    500,
		InterruptPrompt: "^C",
		EOFPrompt:       ":quit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem(":load"),
			readline.PcItem(":data"),
			readline.PcItem(":callbacks"),
			readline.PcItem(":help"),
			readline.PcItem(":quit"),
		),
		Stdout: out,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer func() {
		_ = rl.Close()
	}()

	fmt.Fprintln(out, "Type :help for commands.")
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if len(line) == 0 {
					return nil
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		text, quit, err := r.Eval(line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprint(out, text)
		if quit {
			return nil
		}
	}
}

// RunPiped evaluates every line of in, stopping at the first error.
func (r *REPL) RunPiped(in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		text, quit, err := r.Eval(scanner.Text())
		if err != nil {
			return err
		}
		fmt.Fprint(out, text)
		if quit {
			return nil
		}
	}
	return scanner.Err()
}

func runRepl(opts *options, out io.Writer) error {
	cm, err := loadOptionsConfig(opts)
	if err != nil {
		return err
	}
	cfg := cm.Get()
	// Keep the log away from the prompt unless asked for.
	level := cfg.Server.LogLevel
	if opts.LogLevel == "" {
		level = "warn"
	}
	logger := newLogger(level, cfg.Server.LogFormat, os.Stderr)

	th, err := openTheme(cfg, logger)
	if err != nil {
		return err
	}
	defer th.Close(logger)

	r, err := NewREPL(th.tm, opts.DataFile)
	if err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}

	if fi, err := os.Stdin.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		return r.RunInteractive(out)
	}
	return r.RunPiped(os.Stdin, out)
}
