package testutil

import (
	"testing"

	"github.com/spf13/viper"
)

// ResetConfig resets viper and schedules another reset when the test
// completes.
func ResetConfig(t *testing.T) {
	t.Helper()

	viper.Reset()
	t.Cleanup(viper.Reset)
}

// SetTestConfig resets viper and points it at a catalog inside env, with no
// API keys and short fan-out timeouts. Values are set explicitly, so
// config.InitConfig can still be called afterwards for the remaining
// defaults. It returns the catalog path.
func SetTestConfig(t *testing.T, env *TestEnv) string {
	t.Helper()

	ResetConfig(t)

	dbPath := env.Path("folio-test.db")
	viper.Set("catalog.dbfile", dbPath)
	viper.Set("sources.googlebooks.apikey", "")
	viper.Set("sources.isbndb.apikey", "")
	viper.Set("fallback.calltimeout", "500ms")
	viper.Set("fallback.deadline", "1s")

	return dbPath
}

// SetViperValue sets a viper configuration value and schedules cleanup.
func SetViperValue(t *testing.T, key string, value any) {
	t.Helper()

	// Get the old value (if any)
	oldValue := viper.Get(key)
	hadValue := viper.IsSet(key)

	// Set the new value
	viper.Set(key, value)

	// Schedule cleanup
	t.Cleanup(func() {
		if hadValue {
			viper.Set(key, oldValue)
		}
		// Note: viper doesn't have an Unset function, so we can't
		// restore the "unset" state. This is a known limitation.
	})
}
