package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/folio/internal/config"
)

func TestTestEnv_Path(t *testing.T) {
	env := NewTestEnv(t)

	path := env.Path("subdir", "file.txt")
	assert.True(t, filepath.IsAbs(path))
	assert.Equal(t, filepath.Join(env.RootDir(), "subdir", "file.txt"), path)
	assert.Equal(t, env.RootDir(), env.Path())
}

func TestTestEnv_WriteReadFileString(t *testing.T) {
	env := NewTestEnv(t)

	env.WriteFileString("nested/dir/test.txt", "test string content")
	assert.Equal(t, "test string content", env.ReadFileString("nested/dir/test.txt"))
}

// Config management tests

func TestSetTestConfig(t *testing.T) {
	env := NewTestEnv(t)

	t.Run("inner", func(t *testing.T) {
		dbPath := SetTestConfig(t, env)
		config.InitConfig()

		cfg, err := config.Load()
		require.NoError(t, err)
		assert.Equal(t, dbPath, cfg.Catalog.DBFile)
		assert.Empty(t, cfg.Sources.ISBNdb.APIKey)
		assert.Equal(t, time.Second, cfg.Fallback.Deadline)
	})

	assert.False(t, viper.IsSet("catalog.dbfile"), "viper is reset after the test")
}

func TestSetViperValue(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	t.Run("inner", func(t *testing.T) {
		SetViperValue(t, "test.key", "test-value")
		assert.Equal(t, "test-value", viper.GetString("test.key"))
	})
}

func TestClock(t *testing.T) {
	clock := NewClock()
	start := clock.Now()

	assert.Equal(t, start, clock.Now(), "clock only moves when advanced")
	clock.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), clock.Now())
}
