package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"headerswitch/core"
	"headerswitch/logger"
	"headerswitch/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestProfileAndRuleCommandsExport(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Cleanup(logger.CloseLogFiles)
	dir := t.TempDir()
	db := filepath.Join(dir, "cli.db")
	out := filepath.Join(dir, "rules.json")

	require.NoError(t, runCLI(t, "--dbpath", db, "profile", "create", "QA"))
	require.NoError(t, runCLI(t, "--dbpath", db, "rule", "add", "X-Env", "qa"))
	require.NoError(t, runCLI(t, "--dbpath", db, "rule", "set", "0", "enabled", "false"))
	require.NoError(t, runCLI(t, "--dbpath", db, "export", "--out", out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var directives []models.Directive
	require.NoError(t, json.Unmarshal(data, &directives))
	require.Len(t, directives, 1)
	assert.Equal(t, 1, directives[0].ID)
	assert.Equal(t, models.RequestHeader{Header: "X-Env", Operation: "set", Value: "qa"}, directives[0].Action.RequestHeaders[0])

	err = runCLI(t, "--dbpath", db, "profile", "create", "QA")
	assert.ErrorIs(t, err, core.ErrDuplicateName)
	assert.ErrorIs(t, runCLI(t, "--dbpath", db, "rule", "delete", "7"), core.ErrIndexOutOfRange)

	require.NoError(t, runCLI(t, "--dbpath", db, "profile", "select", "Default"))
	require.NoError(t, runCLI(t, "--dbpath", db, "profile", "delete", "QA"))
	assert.ErrorIs(t, runCLI(t, "--dbpath", db, "profile", "delete", "Default"), core.ErrLastProfile)
}

func TestParseRuleIndex(t *testing.T) {
	index, err := parseRuleIndex("3")
	require.NoError(t, err)
	assert.Equal(t, 3, index)

	_, err = parseRuleIndex("three")
	assert.ErrorIs(t, err, core.ErrIndexOutOfRange)
}
