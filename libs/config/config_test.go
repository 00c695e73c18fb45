package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPort(t *testing.T) {
	t.Setenv("TEST_PORT", "8080")
	p, err := Port("TEST_PORT", "1")
	require.NoError(t, err)
	assert.Equal(t, "8080", p)

	t.Setenv("TEST_PORT", "70000")
	_, err = Port("TEST_PORT", "1")
	assert.Error(t, err)
}

func TestIntBoolDuration(t *testing.T) {
	t.Setenv("TEST_INT", "")
	n, err := Int("TEST_INT", 30)
	require.NoError(t, err)
	assert.Equal(t, 30, n)

	t.Setenv("TEST_INT", "abc")
	_, err = Int("TEST_INT", 30)
	assert.Error(t, err)

	t.Setenv("TEST_BOOL", "off")
	assert.False(t, Bool("TEST_BOOL", true))
	t.Setenv("TEST_BOOL", "maybe")
	assert.True(t, Bool("TEST_BOOL", true))

	t.Setenv("TEST_DUR", "90s")
	d, err := Duration("TEST_DUR", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("STOBOT_DOTENV_KEY=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("STOBOT_DOTENV_KEY") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", String("STOBOT_DOTENV_KEY", ""))
}

func TestRequiredString(t *testing.T) {
	t.Setenv("TEST_REQUIRED", "  ")
	_, err := RequiredString("TEST_REQUIRED")
	assert.EqualError(t, err, "TEST_REQUIRED is required")
}
