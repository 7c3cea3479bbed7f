package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/vk/hostmaint/internal/app"
	"github.com/vk/hostmaint/internal/errs"
)

// Exit codes.
const (
	ExitFailure = 1
	ExitUsage   = 2
	ExitConfig  = 3
)

// Commands.
const (
	CmdRun    = "run"
	CmdConfig = "config"
	CmdMods   = "mods"
	CmdHelp   = "help"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Exit classifies err into an ExitError. Configuration and builtin errors
// exit with ExitConfig, anything else with ExitFailure. A nil err stays nil.
func Exit(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	code := ExitFailure
	if errors.Is(err, errs.ErrConfig) || errors.Is(err, errs.ErrBuiltin) {
		code = ExitConfig
	}
	return &ExitError{Code: code, Message: err.Error()}
}

// Command is a parsed invocation.
type Command struct {
	Name string
	// Task is the task id for CmdRun; empty selects the default task.
	Task   string
	Config *app.Config
}

const usageHeader = `
hostmaint - host maintenance task runner.

Usage:
  hostmaint [options] [run] [TASK]   run TASK (default: "default")
  hostmaint [options] config         load, validate and print the configuration
  hostmaint mods                     list backends and builtins
  hostmaint help                     show this help

Options:
`

// Parse processes command-line arguments. It returns the command to run, a
// boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*Command, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("hostmaint", flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprint(output, usageHeader)
		flagSet.PrintDefaults()
	}

	fileFlag := flagSet.StringP("file", "f", "", "Configuration file (default $"+app.EnvConfigPath+" or "+app.DefaultConfigPath+").")
	verboseFlag := flagSet.CountP("verbose", "v", "Increase verbosity; repeat for more.")
	quietFlag := flagSet.BoolP("quiet", "q", false, "Only report errors.")
	logFormatFlag := flagSet.String("log-format", app.FormatText, "Log output format: text, json or journal.")
	workersFlag := flagSet.Int("workers", 0, "Override nb-workers: 0 uses the CPU count, negative is unbounded.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	cmd := &Command{Name: CmdRun}
	rest := flagSet.Args()
	if len(rest) > 0 {
		switch rest[0] {
		case CmdRun, CmdConfig, CmdMods, CmdHelp:
			cmd.Name = rest[0]
			rest = rest[1:]
		}
	}

	switch cmd.Name {
	case CmdHelp:
		flagSet.Usage()
		return nil, true, nil
	case CmdRun:
		if len(rest) > 1 {
			return nil, false, &ExitError{Code: ExitUsage, Message: "too many arguments: " + strings.Join(rest, " ")}
		}
		if len(rest) == 1 {
			cmd.Task = rest[0]
		}
	default:
		if len(rest) > 0 {
			return nil, false, &ExitError{Code: ExitUsage, Message: fmt.Sprintf("%s takes no arguments", cmd.Name)}
		}
	}

	cfg := app.Config{
		ConfigPath:     *fileFlag,
		LogFormat:      strings.ToLower(*logFormatFlag),
		VerbosityDelta: *verboseFlag,
		Quiet:          *quietFlag,
	}
	if flagSet.Changed("workers") {
		cfg.Workers = workersFlag
	}
	config, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	cmd.Config = config

	slog.Debug("CLI parser finished successfully.", "command", cmd.Name, "task", cmd.Task)
	return cmd, false, nil
}
