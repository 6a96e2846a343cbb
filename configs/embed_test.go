package configs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/tinyrerank/configs"
	"github.com/Aman-CERP/tinyrerank/internal/config"
)

func TestConfigTemplate_MatchesDefaults(t *testing.T) {
	// Given: the embedded template on disk
	path := filepath.Join(t.TempDir(), config.ProjectConfigName)
	require.NoError(t, os.WriteFile(path, []byte(configs.ConfigTemplate), 0o644))

	// When: it is loaded over the defaults with unknown keys rejected
	loaded, err := config.LoadFile(path)

	// Then: every value equals the built-in default
	require.NoError(t, err)
	loaded.Sources = nil
	assert.Equal(t, config.NewConfig(), loaded)
	assert.NoError(t, loaded.Validate())
}
