package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chriserin/ftrp/internal/config"
	"github.com/chriserin/ftrp/internal/store"
)

const testStorePath = ".ftrp/ftrp.db"

func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(orig) })
	return dir
}

func runInit(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, RunInit(context.Background(), &buf, testStorePath))
	return buf.String()
}

// testConfig returns the default configuration with overrides applied.
func testConfig(t testing.TB, overrides map[string]any) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	for k, val := range overrides {
		v.Set(k, val)
	}
	c, err := config.New(v)
	require.NoError(t, err)
	return c
}

func TestInit_CreatesStoreDirectory(t *testing.T) {
	dir := inTempDir(t)
	out := runInit(t)

	info, err := os.Stat(filepath.Join(dir, ".ftrp"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Contains(t, out, ".ftrp/ created")
}

func TestInit_StoreDirectoryAlreadyExists(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".ftrp"), 0o755))

	out := runInit(t)

	assert.Contains(t, out, ".ftrp/ already exists")
}

func TestInit_InitializesSQLiteDatabase(t *testing.T) {
	dir := inTempDir(t)
	out := runInit(t)

	dbPath := filepath.Join(dir, ".ftrp", "ftrp.db")
	_, err := os.Stat(dbPath)
	require.NoError(t, err)

	sqlDB, err := store.Open(context.Background(), dbPath)
	require.NoError(t, err)
	defer sqlDB.Close()

	var mode string
	require.NoError(t, sqlDB.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
	assert.Contains(t, out, ".ftrp/ftrp.db created")
}

func TestInit_DatabaseAlreadyExists(t *testing.T) {
	inTempDir(t)
	runInit(t)

	out := runInit(t)
	assert.Contains(t, out, ".ftrp/ftrp.db already exists")
}

func TestInit_AppliesMigrations(t *testing.T) {
	inTempDir(t)
	runInit(t)

	sqlDB, err := store.Open(context.Background(), testStorePath)
	require.NoError(t, err)
	defer sqlDB.Close()

	var version int
	require.NoError(t, sqlDB.QueryRow("SELECT version FROM schema_version").Scan(&version))
	assert.Equal(t, len(store.All), version)
}

func TestInit_AddsToGitignore(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("node_modules\n"), 0o644))

	out := runInit(t)

	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(data), ".ftrp/ftrp.db\n")
	assert.Contains(t, string(data), "node_modules\n")
	assert.Contains(t, out, ".ftrp/ftrp.db added to .gitignore")
}

func TestInit_GitignoreAlreadyHasEntry(t *testing.T) {
	dir := inTempDir(t)
	original := "node_modules\n.ftrp/ftrp.db\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(original), 0o644))

	out := runInit(t)

	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, original, string(data))
	assert.Contains(t, out, ".ftrp/ftrp.db already in .gitignore")
}

func TestInit_NoGitignoreExists(t *testing.T) {
	dir := inTempDir(t)
	out := runInit(t)

	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, ".ftrp/ftrp.db\n", string(data))
	assert.Contains(t, out, ".gitignore created")
}

func TestCommands_RequireInit(t *testing.T) {
	inTempDir(t)
	ctx := context.Background()
	var buf bytes.Buffer

	assert.ErrorIs(t, RunList(ctx, &buf, testStorePath, ""), errNotInitialized)
	assert.ErrorIs(t, RunShow(ctx, &buf, testStorePath, "latest", "text"), errNotInitialized)
	assert.ErrorIs(t, RunStatus(ctx, &buf, testStorePath, "latest"), errNotInitialized)
	assert.ErrorIs(t, RunLogs(ctx, &buf, testStorePath, "latest", "", ""), errNotInitialized)
}
