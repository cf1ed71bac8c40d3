package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// clearEnv isolates a test from the caller's environment. Variables are
// registered with t.Setenv so they are restored, then removed entirely so
// .env loading can populate them.
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

var clientEnv = []string{
	"BAZAAR_SERVER_URL", "BAZAAR_HOME_DIR", "BAZAAR_LOG_LEVEL", "DEBUG",
	"BAZAAR_PUSHOVER_TOKEN", "BAZAAR_PUSHOVER_USER",
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t, clientEnv...)
	home := filepath.Join(t.TempDir(), "home")
	t.Setenv("BAZAAR_HOME_DIR", home)

	cfg, err := Load(Overrides{})
	require.NoError(t, err)
	require.Equal(t, DefaultServerURL, cfg.ServerURL)
	require.Equal(t, "/v1/updates", cfg.SocketPath)
	require.Equal(t, filepath.Join(home, "access.key"), cfg.AccessKey)
	require.Equal(t, "info", cfg.Level())
	require.DirExists(t, home)
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t, clientEnv...)
	home := t.TempDir()

	file := `
server_url = "https://file.example"
log_level = "warn"
credential_poll = "250ms"

[backoff]
floor = "1s"
factor = 2.0
ceiling = "1m"
`
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.toml"), []byte(file), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".env"),
		[]byte("BAZAAR_PUSHOVER_TOKEN=tok\nBAZAAR_PUSHOVER_USER=usr\n"), 0600))
	t.Setenv("BAZAAR_LOG_LEVEL", "ERROR")

	flagURL := "https://flag.example"
	cfg, err := Load(Overrides{Home: &home, ServerURL: &flagURL})
	require.NoError(t, err)

	require.Equal(t, flagURL, cfg.ServerURL)
	require.Equal(t, "error", cfg.LogLevel)
	require.Equal(t, 250*time.Millisecond, cfg.CredentialPoll.Std())
	require.Equal(t, time.Second, cfg.Backoff.Floor.Std())
	require.Equal(t, 2.0, cfg.Backoff.Factor)
	require.Equal(t, time.Minute, cfg.Backoff.Ceiling.Std())
	require.Equal(t, "tok", cfg.Pushover.Token)
	require.Equal(t, "usr", cfg.Pushover.UserKey)

	debug := true
	cfg, err = Load(Overrides{Home: &home, Debug: &debug})
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Level())
}

func TestLoadRejectsInvalid(t *testing.T) {
	clearEnv(t, clientEnv...)
	home := t.TempDir()

	t.Setenv("BAZAAR_SERVER_URL", "not a url")
	_, err := Load(Overrides{Home: &home})
	require.ErrorIs(t, err, ErrInvalid)
	require.Contains(t, err.Error(), "ServerURL")

	t.Setenv("BAZAAR_SERVER_URL", "")
	t.Setenv("BAZAAR_PUSHOVER_TOKEN", "only-token")
	_, err = Load(Overrides{Home: &home})
	require.ErrorIs(t, err, ErrInvalid)
	require.Contains(t, err.Error(), "UserKey")

	t.Setenv("BAZAAR_PUSHOVER_TOKEN", "")
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.toml"), []byte("log_level = [1"), 0600))
	_, err = Load(Overrides{Home: &home})
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse")
}

func TestSetAndSaveFile(t *testing.T) {
	t.Parallel()

	home := t.TempDir()
	cfg := Default(home)

	require.NoError(t, cfg.Set("server_url", "https://api.example"))
	require.NoError(t, cfg.Set("backoff.factor", "1.5"))
	require.NoError(t, cfg.Set("pushover.cooldown", "2m"))
	require.NoError(t, cfg.Set("Debug", "true"))

	err := cfg.Set("backoff.factor", "0.5")
	require.ErrorIs(t, err, ErrInvalid)
	require.Equal(t, 1.5, cfg.Backoff.Factor, "failed set leaves config untouched")

	require.ErrorIs(t, cfg.Set("nope", "x"), ErrUnknownKey)
	require.Error(t, cfg.Set("credential_poll", "soon"))
	require.ErrorIs(t, cfg.Set("log_level", "loud"), ErrInvalid)

	require.NoError(t, cfg.SaveFile())
	info, err := os.Stat(cfg.Path())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reloaded := Default(home)
	require.NoError(t, reloaded.readFile())
	require.Equal(t, "https://api.example", reloaded.ServerURL)
	require.Equal(t, 1.5, reloaded.Backoff.Factor)
	require.Equal(t, 2*time.Minute, reloaded.Pushover.Cooldown.Std())
	require.True(t, reloaded.Debug)
	require.Equal(t, filepath.Join(home, "access.key"), reloaded.AccessKey)
}

func TestKeysSorted(t *testing.T) {
	t.Parallel()

	keys := Keys()
	require.Contains(t, keys, "server_url")
	require.IsIncreasing(t, keys)
}

var serverEnv = []string{
	"PORT", "DATABASE_URL", "DATABASE_PATH", "BAZAAR_MASTER_SECRET", "DEBUG",
	"BAZAAR_ALLOWED_ORIGINS", "BAZAAR_AMQP_URL", "BAZAAR_NODE_ID",
}

func TestLoadServer(t *testing.T) {
	clearEnv(t, serverEnv...)

	_, err := LoadServer(ServerOverrides{})
	require.ErrorIs(t, err, ErrInvalid)

	t.Setenv("BAZAAR_MASTER_SECRET", "s3cret")
	t.Setenv("PORT", "8080")
	t.Setenv("BAZAAR_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("BAZAAR_NODE_ID", "node-1")

	cfg, err := LoadServer(ServerOverrides{})
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Addr)
	require.Equal(t, "./bazaar.db", cfg.DatabaseURL)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	require.Equal(t, "node-1", cfg.NodeID)
	require.Empty(t, cfg.AMQPURL)
	require.False(t, cfg.Debug)

	addr := "127.0.0.1:0"
	db := "postgres://localhost/bazaar"
	debug := true
	cfg, err = LoadServer(ServerOverrides{Addr: &addr, DatabaseURL: &db, Debug: &debug})
	require.NoError(t, err)
	require.Equal(t, addr, cfg.Addr)
	require.Equal(t, db, cfg.DatabaseURL)
	require.True(t, cfg.Debug)

	_, err = LoadServer(ServerOverrides{TLS: &TLSConfig{CertFile: "cert.pem"}})
	require.ErrorIs(t, err, ErrInvalid)
}
