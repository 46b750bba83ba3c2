//go:build !integration

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"logs", "groups", "verify", "extract", "migrate", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "sagebase", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)
}

func TestLogsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range logsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "stats", "import", "check"} {
		assert.True(t, names[name], "logs should have subcommand %q", name)
	}
}

func TestLogsListCommand_Flags(t *testing.T) {
	for _, name := range []string{"entity-type", "entity-id", "pipeline-version", "from", "to", "min-confidence", "offset"} {
		assert.NotNil(t, logsListCmd.Flags().Lookup(name), "logs list should have --%s flag", name)
	}
	limit := logsListCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "50", limit.DefValue)

	assert.Nil(t, logsStatsCmd.Flags().Lookup("limit"), "stats is not paginated")
	assert.NotNil(t, logsStatsCmd.Flags().Lookup("since"))
}

func TestGroupsCommand_Flags(t *testing.T) {
	for _, name := range []string{"governing-body", "as-of", "active-only", "chamber", "json"} {
		assert.NotNil(t, groupsListCmd.Flags().Lookup(name), "groups list should have --%s flag", name)
	}
	activeOnly := groupsListCmd.Flags().Lookup("active-only")
	require.NotNil(t, activeOnly)
	assert.Equal(t, "true", activeOnly.DefValue)
	assert.NotNil(t, groupsSeedCmd.Flags().Lookup("dry-run"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestExtractCommand_Flags(t *testing.T) {
	for _, name := range []string{"pipeline-version", "concurrency", "model", "json"} {
		assert.NotNil(t, extractCmd.Flags().Lookup(name), "extract should have --%s flag", name)
	}
	assert.NotNil(t, verifyCmd.Flags().Lookup("unset"))
}

func TestRootCmd_PersistentPreRunE_WithConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := `
store:
  driver: sqlite
  database_url: sagebase.db
log:
  level: debug
  format: console
extraction:
  default_pipeline_version: file-v2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	t.Chdir(dir)

	oldCfg := cfg
	cfg = nil
	defer func() { cfg = oldCfg }()

	require.NoError(t, rootCmd.PersistentPreRunE(rootCmd, nil))
	require.NotNil(t, cfg)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "sagebase.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "file-v2", cfg.Extraction.DefaultPipelineVersion)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrency)
}

func TestRootCmd_PersistentPreRunE_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SAGEBASE_STORE_DRIVER", "sqlite")
	t.Setenv("SAGEBASE_BATCH_MAX_CONCURRENCY", "8")

	oldCfg := cfg
	cfg = nil
	defer func() { cfg = oldCfg }()

	require.NoError(t, rootCmd.PersistentPreRunE(rootCmd, nil))
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 8, cfg.Batch.MaxConcurrency)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestRootCmd_PersistentPreRunE_BadLogLevel(t *testing.T) {
	dir := t.TempDir()
	content := `
log:
  level: NOT_A_LEVEL
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	t.Chdir(dir)

	oldCfg := cfg
	cfg = nil
	defer func() { cfg = oldCfg }()

	err := rootCmd.PersistentPreRunE(rootCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init logger")
}

func TestRootCmd_PersistentPreRunE_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("invalid: [yaml: bad"), 0o644))
	t.Chdir(dir)

	oldCfg := cfg
	cfg = nil
	defer func() { cfg = oldCfg }()

	err := rootCmd.PersistentPreRunE(rootCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRootCmd_PersistentPostRun_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		rootCmd.PersistentPostRun(rootCmd, nil)
	})
}
