package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/vk/hostmaint/internal/hcl"
	"github.com/vk/hostmaint/internal/testutil"
)

// SetupAppTest writes files into a temporary directory, loads main.hcl from
// it at debug verbosity and returns the app and its log buffer.
func SetupAppTest(t *testing.T, files map[string]string, cfg Config) (*App, *testutil.SafeBuffer, error) {
	t.Helper()

	dir := testutil.WriteFiles(t, files)
	cfg.ConfigPath = filepath.Join(dir, "main.hcl")
	if cfg.VerbosityDelta == 0 && !cfg.Quiet {
		cfg.VerbosityDelta = 4
	}
	c, err := NewConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	logBuffer := &testutil.SafeBuffer{}
	t.Cleanup(func() {
		if os.Getenv("HOSTMAINT_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	testApp, err := NewApp(context.Background(), logBuffer, c, hcl.NewLoader())
	return testApp, logBuffer, err
}
