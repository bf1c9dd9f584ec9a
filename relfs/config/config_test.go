package config

import (
	"os"
	"path/filepath"
	"testing"

	internal "github.com/ZanzyTHEbar/relfs/relfs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	// Save original directory
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	// Create temporary directory for testing
	tempDir, err := os.MkdirTemp("", "relfs-config-test-*")
	require.NoError(suite.T(), err)
	suite.tempDir = tempDir

	// Change to temp directory
	err = os.Chdir(tempDir)
	require.NoError(suite.T(), err)
}

func (suite *ConfigTestSuite) TearDownTest() {
	// Change back to original directory
	if suite.origDir != "" {
		os.Chdir(suite.origDir)
	}

	// Clean up temporary directory
	if suite.tempDir != "" {
		os.RemoveAll(suite.tempDir)
	}
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	// Load config without config file (should use defaults)
	cfg, err := LoadConfig("")

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.False(suite.T(), cfg.Engine.Verbose)
	assert.Equal(suite.T(), 64*1024, cfg.Engine.CopyBufferSize)
	assert.Equal(suite.T(), 64, cfg.Engine.MaxSymlinkHops)
	assert.Equal(suite.T(), internal.DefaultTempPrefix, cfg.Engine.TempPrefix)
	assert.Equal(suite.T(), 4, cfg.Engine.BatchWorkers)
	assert.Equal(suite.T(), internal.DefaultLoopControlPath, cfg.Mount.LoopControlPath)
	assert.Equal(suite.T(), 30, cfg.Mount.HelperTimeoutSeconds)
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	// Create a test config file
	configContent := `
engine:
  verbose: true
  copyBufferSize: 1234
  batchWorkers: 8
mount:
  loopControlPath: "/dev/loop-control-test"
`
	configPath := filepath.Join(suite.tempDir, "config.yaml")
	err := os.WriteFile(configPath, []byte(configContent), 0o644)
	require.NoError(suite.T(), err)

	cfg, err := LoadConfig(configPath)
	require.NoError(suite.T(), err)

	assert.True(suite.T(), cfg.Engine.Verbose)
	assert.Equal(suite.T(), 1234, cfg.Engine.CopyBufferSize)
	assert.Equal(suite.T(), 8, cfg.Engine.BatchWorkers)
	assert.Equal(suite.T(), "/dev/loop-control-test", cfg.Mount.LoopControlPath)

	// Unset keys keep their defaults
	assert.Equal(suite.T(), 64, cfg.Engine.MaxSymlinkHops)
}

func (suite *ConfigTestSuite) TestLoadConfigUpdatesGlobal() {
	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), *cfg, AppConfig)
}

func TestDefaultConfigs(t *testing.T) {
	engine := DefaultEngineConfig()
	assert.Equal(t, 64*1024, engine.CopyBufferSize)
	assert.Equal(t, internal.DefaultTempPrefix, engine.TempPrefix)

	mount := DefaultMountConfig()
	assert.Equal(t, internal.DefaultLoopControlPath, mount.LoopControlPath)
	assert.Equal(t, 30, mount.HelperTimeoutSeconds)
}
