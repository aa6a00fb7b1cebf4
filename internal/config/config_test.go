package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "pairchat.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_FlagsOnly(t *testing.T) {
	t.Parallel()

	cfg, err := Load("test", []string{"-jwt-key", "k", "-store", "memory", "-admins", "root, ops", "-send-rps", "0"})
	require.NoError(t, err)
	require.Equal(t, StoreMemory, cfg.Store)
	require.Equal(t, []string{"root", "ops"}, cfg.Admins)
	require.Zero(t, cfg.Limits.SendRPS)
	require.Equal(t, 24*time.Hour, cfg.Messages.DefaultTTL, "defaults kept")
}

func TestLoad_FileThenFlags(t *testing.T) {
	t.Parallel()

	p := writeYAML(t, `
addr: ":7000"
jwt_key: from-file
access_ttl: 1h
admins: [root]
attachments:
  max_size: 1024
  allow: ["image/", "application/pdf"]
messages:
  default_ttl: 2h
limits:
  send_burst: 3
`)
	cfg, err := Load("test", []string{"-config", p, "-addr", ":7001"})
	require.NoError(t, err)
	require.Equal(t, ":7001", cfg.Addr, "explicit flag beats file")
	require.Equal(t, "from-file", cfg.JWTKey)
	require.Equal(t, time.Hour, cfg.AccessTTL)
	require.Equal(t, []string{"root"}, cfg.Admins)
	require.Equal(t, 1024, cfg.Attachments.MaxSize)
	require.Equal(t, []string{"image/", "application/pdf"}, cfg.Attachments.Allow)
	require.Equal(t, 2*time.Hour, cfg.Messages.DefaultTTL)
	require.Equal(t, 3, cfg.Limits.SendBurst)
	require.Equal(t, 5, cfg.Limits.LoginMaxFails, "unset file keys keep defaults")
	require.Equal(t, p, cfg.File)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	_, err := Load("test", nil)
	require.ErrorContains(t, err, "jwt")

	_, err = Load("test", []string{"-jwt-key", "k", "-store", "sqlite"})
	require.ErrorContains(t, err, "unknown store")

	_, err = Load("test", []string{"-jwt-key", "k", "-tls-cert", "c.pem"})
	require.ErrorContains(t, err, "together")

	_, err = Load("test", []string{"-jwt-key", "k", "-config", filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)

	_, err = Load("test", []string{"-jwt-key", "k", "-config", writeYAML(t, "addr: [unclosed")})
	require.Error(t, err)

	_, err = Load("test", []string{"-no-such-flag"})
	require.Error(t, err)
}
