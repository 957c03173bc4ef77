package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gateway/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "gateway dev")
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = os.Stat(path)
	require.NoError(t, err)

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "pool", cfg.Dispatch.Strategy)

	_, err = execute(t, "config", "init", path)
	assert.Error(t, err, "existing file must not be overwritten")
}

func TestServeCommand_InvalidStrategy(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := execute(t, "serve", "--strategy", "fork")
	assert.ErrorContains(t, err, "dispatch.strategy")
}
