package main

import (
	"flag"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/taji-labs/signing-service/pkg/config"
	badgerJournal "github.com/taji-labs/signing-service/pkg/journal/badger"
	"github.com/taji-labs/signing-service/pkg/journal/memory"
)

func newTestContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	app := &cli.App{Flags: serverFlags()}
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range app.Flags {
		require.NoError(t, f.Apply(set))
	}
	require.NoError(t, set.Parse(args))
	return cli.NewContext(app, set, nil)
}

func TestParseServerConfig_Defaults(t *testing.T) {
	cfg := parseServerConfig(newTestContext(t))

	defaults := config.NewDefaultConfig()
	assert.Equal(t, defaults.Port, cfg.Port)
	assert.Equal(t, defaults.MaxBodyBytes, cfg.MaxBodyBytes)
	assert.Equal(t, defaults.LogFormat, cfg.LogFormat)
	assert.Equal(t, defaults.Journal.Backend, cfg.Journal.Backend)
	assert.Equal(t, defaults.ShutdownTimeout, cfg.ShutdownTimeout)
	assert.False(t, cfg.Auth.Enabled())
	assert.False(t, cfg.RateLimit.Enabled())
	require.NoError(t, cfg.Validate())
}

func TestParseServerConfig_Flags(t *testing.T) {
	cfg := parseServerConfig(newTestContext(t,
		"--port", "8080",
		"--debug",
		"--log-format", "logfmt",
		"--cors-origin", "https://app.example.com",
		"--rate-limit-rps", "5",
		"--rate-limit-burst", "10",
		"--journal", "redis",
		"--journal-redis-address", "localhost:6379",
		"--journal-redis-db", "2",
		"--shutdown-timeout", "3s",
	))

	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "logfmt", cfg.LogFormat)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORSOrigins)
	assert.False(t, cfg.AllowsAllOrigins())
	assert.Equal(t, 5.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Equal(t, config.JournalBackendRedis, cfg.Journal.Backend)
	assert.Equal(t, "localhost:6379", cfg.Journal.Redis.Address)
	assert.Equal(t, 2, cfg.Journal.Redis.DB)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	require.NoError(t, cfg.Validate())
}

func TestOpenJournal(t *testing.T) {
	l := zap.NewNop()

	t.Run("none", func(t *testing.T) {
		j, err := openJournal(config.JournalConfig{Backend: config.JournalBackendNone}, l)
		require.NoError(t, err)
		assert.Nil(t, j)
	})

	t.Run("memory", func(t *testing.T) {
		j, err := openJournal(config.JournalConfig{Backend: config.JournalBackendMemory}, l)
		require.NoError(t, err)
		require.IsType(t, &memory.MemoryJournal{}, j)
		require.NoError(t, j.Close())
	})

	t.Run("badger", func(t *testing.T) {
		j, err := openJournal(config.JournalConfig{
			Backend:    config.JournalBackendBadger,
			BadgerPath: filepath.Join(t.TempDir(), "journal"),
		}, l)
		require.NoError(t, err)
		require.IsType(t, &badgerJournal.BadgerJournal{}, j)
		assert.NoError(t, j.HealthCheck())
		require.NoError(t, j.Close())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := openJournal(config.JournalConfig{Backend: "etcd"}, l)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown journal backend")
	})
}
