package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bhandras/bazaar/internal/auth"
)

func TestRedactDSN(t *testing.T) {
	t.Parallel()

	require.Equal(t, "./bazaar.db", redactDSN("./bazaar.db"))
	require.Equal(t, "postgres://bazaar:xxxxx@db:5432/bazaar",
		redactDSN("postgres://bazaar:hunter2@db:5432/bazaar"))
}

func TestServerOverrides(t *testing.T) {
	cmd := rootCmd
	require.NoError(t, cmd.ParseFlags([]string{"--addr", ":9000", "--debug", "--tls-cert", "c.pem", "--tls-key", "k.pem"}))

	o := serverOverrides(cmd)
	require.NotNil(t, o.Addr)
	require.Equal(t, ":9000", *o.Addr)
	require.NotNil(t, o.Debug)
	require.True(t, *o.Debug)
	require.Nil(t, o.DatabaseURL)
	require.Nil(t, o.AMQPURL)
	require.NotNil(t, o.TLS)
	require.Equal(t, "c.pem", o.TLS.CertFile)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("BAZAAR_MASTER_SECRET", "server-secret")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"token", "alice", "--ttl", "1h"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	require.NoError(t, rootCmd.Execute())

	jwtManager, err := auth.NewJWTManager("server-secret")
	require.NoError(t, err)
	claims, err := jwtManager.VerifyToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	require.Equal(t, "alice", claims.UserID())
	require.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}
