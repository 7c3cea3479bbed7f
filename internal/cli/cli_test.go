package cli

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/hostmaint/internal/app"
	"github.com/vk/hostmaint/internal/errs"
)

func TestParse(t *testing.T) {
	t.Setenv(app.EnvConfigPath, "")

	testCases := []struct {
		name     string
		args     []string
		wantCmd  string
		wantTask string
		check    func(t *testing.T, c *app.Config)
	}{
		{
			name:    "defaults",
			args:    nil,
			wantCmd: CmdRun,
			check: func(t *testing.T, c *app.Config) {
				assert.Equal(t, app.DefaultConfigPath, c.ConfigPath)
				assert.Equal(t, app.FormatText, c.LogFormat)
				assert.Nil(t, c.Workers)
			},
		},
		{
			name:     "bare task id",
			args:     []string{"-f", "/etc/x.hcl", "nightly"},
			wantCmd:  CmdRun,
			wantTask: "nightly",
			check: func(t *testing.T, c *app.Config) {
				assert.Equal(t, "/etc/x.hcl", c.ConfigPath)
			},
		},
		{
			name:     "explicit run with flags after",
			args:     []string{"run", "weekly", "-vv", "--workers", "0", "--log-format", "JSON"},
			wantCmd:  CmdRun,
			wantTask: "weekly",
			check: func(t *testing.T, c *app.Config) {
				assert.Equal(t, 2, c.VerbosityDelta)
				require.NotNil(t, c.Workers)
				assert.Equal(t, 0, *c.Workers)
				assert.Equal(t, app.FormatJSON, c.LogFormat)
			},
		},
		{
			name:    "config command",
			args:    []string{"-q", "config"},
			wantCmd: CmdConfig,
			check: func(t *testing.T, c *app.Config) {
				assert.True(t, c.Quiet)
			},
		},
		{
			name:    "mods command",
			args:    []string{"mods"},
			wantCmd: CmdMods,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Act ---
			cmd, exit, err := Parse(tc.args, &bytes.Buffer{})

			// --- Assert ---
			require.NoError(t, err)
			require.False(t, exit)
			assert.Equal(t, tc.wantCmd, cmd.Name)
			assert.Equal(t, tc.wantTask, cmd.Task)
			if tc.check != nil {
				tc.check(t, cmd.Config)
			}
		})
	}
}

func TestParse_Help(t *testing.T) {
	for _, args := range [][]string{{"-h"}, {"help"}} {
		out := &bytes.Buffer{}
		cmd, exit, err := Parse(args, out)
		require.NoError(t, err)
		assert.True(t, exit)
		assert.Nil(t, cmd)
		assert.Contains(t, out.String(), "Usage:")
		assert.Contains(t, out.String(), "--log-format")
	}
}

func TestParse_UsageErrors(t *testing.T) {
	testCases := map[string][]string{
		"unknown flag":       {"--bogus"},
		"too many args":      {"run", "a", "b"},
		"config takes none":  {"config", "extra"},
		"bad log format":     {"--log-format", "xml"},
		"quiet and verbose":  {"-q", "-v"},
		"non-numeric worker": {"--workers", "many"},
	}
	for name, args := range testCases {
		t.Run(name, func(t *testing.T) {
			_, _, err := Parse(args, &bytes.Buffer{})
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, ExitUsage, exitErr.Code)
		})
	}
}

func TestExit(t *testing.T) {
	require.NoError(t, Exit(nil))

	var exitErr *ExitError
	require.ErrorAs(t, Exit(errs.Configf("duplicate exec %q", "tar")), &exitErr)
	assert.Equal(t, ExitConfig, exitErr.Code)

	require.ErrorAs(t, Exit(fmt.Errorf("task failed: %w", errs.ErrPipeline)), &exitErr)
	assert.Equal(t, ExitFailure, exitErr.Code)

	require.ErrorAs(t, Exit(&ExitError{Code: ExitUsage, Message: "x"}), &exitErr)
	assert.Equal(t, ExitUsage, exitErr.Code)
}
