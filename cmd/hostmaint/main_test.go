package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/hostmaint/internal/cli"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600), "failed to set up test file")
	return path
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *cli.ExitError
	require.True(t, errors.As(err, &exitErr), "expected an ExitError, got %v", err)
	return exitErr.Code
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The "-h" (help) flag should cause cli.Parse to return `shouldExit=true`.
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, &bytes.Buffer{}, []string{"-h"})

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{"--this-is-not-a-valid-flag"})

	require.Error(t, err)
	assert.Equal(t, cli.ExitUsage, exitCode(t, err))
	assert.Contains(t, err.Error(), "unknown flag: --this-is-not-a-valid-flag")
}

func TestRun_SyntaxErrorIsConfigExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	path := writeConfig(t, `
task "routine" "default" {
  step "exec-inline" {
    argv = ["true"]
  // Missing closing braces here
`)

	// --- Act ---
	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{"-f", path})

	// --- Assert ---
	require.Error(t, err)
	assert.Equal(t, cli.ExitConfig, exitCode(t, err))
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestRun_DefaultRoutine(t *testing.T) {
	t.Parallel()

	marker := filepath.Join(t.TempDir(), "ran")
	path := writeConfig(t, `
task "routine" "default" {
  step "exec-inline" {
    argv = ["touch", "`+marker+`"]
  }
}
`)

	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{"-f", path})

	require.NoError(t, err)
	assert.FileExists(t, marker)
}

func TestRun_FailingTaskExitsWithFailure(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
task "routine" "default" {
  step "exec-inline" {
    argv = ["false"]
  }
}
`)

	err := run(context.Background(), &bytes.Buffer{}, &bytes.Buffer{}, []string{"-f", path, "-q"})

	require.Error(t, err)
	assert.Equal(t, cli.ExitFailure, exitCode(t, err))
}

func TestRun_ConfigCommand(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
vl = 2
task "backup" "b" {
  backend = "null"
  object "x" {
    step "exec-inline" { argv = ["true"] }
  }
}
`)
	out := &bytes.Buffer{}

	err := run(context.Background(), out, &bytes.Buffer{}, []string{"config", "-f", path, "--workers", "3"})

	require.NoError(t, err)
	assert.Contains(t, out.String(), "nb-workers: 3")
	assert.Contains(t, out.String(), "vl: 2")
	assert.Contains(t, out.String(), "backend: \"null\"")
}

func TestRun_Mods(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	err := run(context.Background(), out, &bytes.Buffer{}, []string{"mods"})

	require.NoError(t, err)
	assert.Contains(t, out.String(), "localfs")
	assert.Contains(t, out.String(), "sigmask")
}
