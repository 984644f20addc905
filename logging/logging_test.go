package logging

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Setup("loud", ""))
}

func TestSetupWritesRotatedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Setup("debug", dir))
	t.Cleanup(func() { log.StandardLogger().ReplaceHooks(make(log.LevelHooks)) })

	assert.Equal(t, log.DebugLevel, log.GetLevel())

	log.Info("tile lobby-1 online")

	matches, err := filepath.Glob(filepath.Join(dir, "cctvwall.log.*"))
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "tile lobby-1 online")
}
