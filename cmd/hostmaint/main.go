package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vk/hostmaint/internal/app"
	"github.com/vk/hostmaint/internal/cli"
	"github.com/vk/hostmaint/internal/hcl"
)

// main is the entrypoint for the hostmaint application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// The real main function handles errors and exit codes.
	if err := run(context.Background(), os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitFailure)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling. Command output goes to outW, logs and child diagnostics to errW.
func run(ctx context.Context, outW, errW io.Writer, args []string) error {
	cmd, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	if cmd.Name == cli.CmdMods {
		return app.WriteModules(outW)
	}

	// Instantiate the concrete HCL loader to pass to the app.
	hostApp, err := app.NewApp(ctx, errW, cmd.Config, hcl.NewLoader())
	if err != nil {
		return cli.Exit(err)
	}

	switch cmd.Name {
	case cli.CmdConfig:
		return hostApp.Dump(outW)
	default:
		return cli.Exit(hostApp.Run(ctx, cmd.Task))
	}
}
