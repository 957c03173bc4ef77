package logger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	dir := t.TempDir()
	r, err := New(Config{Level: "debug", Format: "json", Dir: dir, Filename: "gateway.log"})
	require.NoError(t, err)

	r.Info("cache hit", map[string]interface{}{"key": "GET /?q=Paris"})
	r.Debug("debug line", nil)
	r.Error("upstream failed", errors.New("boom"), map[string]interface{}{"status": 502})
	require.NoError(t, r.Close())

	data, err := os.ReadFile(filepath.Join(dir, "gateway.log"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "cache hit", first["message"])
	assert.Equal(t, "GET /?q=Paris", first["key"])

	var last map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &last))
	assert.Equal(t, "boom", last["error"])
	assert.EqualValues(t, 502, last["status"])
}

func TestNew_LevelFiltersDebug(t *testing.T) {
	dir := t.TempDir()
	r, err := New(Config{Level: "info", Format: "json", Dir: dir})
	require.NoError(t, err)

	r.Debug("hidden", nil)
	r.Info("shown", nil)
	require.NoError(t, r.Close())

	data, err := os.ReadFile(filepath.Join(dir, "gateway.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Config{Format: "xml"})
	assert.Error(t, err)
}

func TestNewFromLogr(t *testing.T) {
	r := NewFromLogr(testr.New(t))
	r.Info("hello", map[string]interface{}{"b": 2, "a": 1})
	r.Error("failed", errors.New("x"), nil)
	assert.NoError(t, r.Close())
	assert.NoError(t, r.Close())
}

func TestKeysAndValues_SortedByKey(t *testing.T) {
	kv := keysAndValues(map[string]interface{}{"path": "/", "method": "GET", "id": 7})
	assert.Equal(t, []interface{}{"id", 7, "method", "GET", "path", "/"}, kv)
	assert.Nil(t, keysAndValues(nil))
}

func TestRotatingFile_RotatesAtMaxSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.log")
	f, err := openRotatingFile(path, &RotationConfig{MaxSize: 10})
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("0123456789"))
	require.NoError(t, err)
	_, err = f.Write([]byte("next"))
	require.NoError(t, err)

	rotated, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.Len(t, rotated, 1)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "next", string(data))
}

func TestCleanOldLogs(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "gateway.log")
	now := time.Now()

	ages := []time.Duration{time.Hour, 2 * time.Hour, 3 * time.Hour, 10 * 24 * time.Hour}
	for i, age := range ages {
		p := base + "." + string(rune('a'+i))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
		require.NoError(t, os.Chtimes(p, now.Add(-age), now.Add(-age)))
	}

	require.NoError(t, cleanOldLogs(base, &RotationConfig{MaxAge: 7 * 24 * time.Hour, MaxBackups: 2}, now))

	remaining, err := filepath.Glob(base + ".*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{base + ".a", base + ".b"}, remaining)
}
