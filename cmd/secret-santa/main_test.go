package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckConfig_PrintsRedacted(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123456:verysecret")
	t.Setenv("TELEGRAM_ADMINS", "1")

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"check-config", "--env-file", ""})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "cret")
	assert.NotContains(t, out.String(), "verysecret")
}

func TestCheckConfig_InvalidFails(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	os.Unsetenv("TELEGRAM_BOT_TOKEN")

	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"check-config", "--env-file", filepath.Join(t.TempDir(), "none.env")})

	assert.Error(t, cmd.Execute())
}
