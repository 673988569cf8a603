package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithSecret(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("BOOKSHELF_JWT_SECRET", "s3cret")
	t.Setenv("BOOKSHELF_DB_USER", "app")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":9090", cfg.GRPCAddr)
	assert.Equal(t, "bookshelf-api", cfg.TokenIssuer)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 10, cfg.DB.MaxOpenConns)
	assert.Equal(t, 5*time.Second, cfg.DB.AcquireTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins())
	assert.Empty(t, cfg.TrustedProxies())
}

func TestTrustedProxiesFromEnvAndFlags(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("BOOKSHELF_JWT_SECRET", "s3cret")
	t.Setenv("BOOKSHELF_DB_USER", "app")
	t.Setenv("BOOKSHELF_TRUSTED_PROXIES", " 10.0.0.0/8, ,192.0.2.7 ")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.7"}, cfg.TrustedProxies())

	cfg, err = Load([]string{"-trusted-proxies", "127.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"127.0.0.1"}, cfg.TrustedProxies())
}

func TestFlagsOverrideEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("BOOKSHELF_JWT_SECRET", "s3cret")
	t.Setenv("BOOKSHELF_DB_USER", "app")
	t.Setenv("BOOKSHELF_HTTP_ADDR", ":7000")
	t.Setenv("BOOKSHELF_JWT_TTL", "1h")
	t.Setenv("BOOKSHELF_ENV", "production")

	cfg, err := Load([]string{"-http", ":7001", "-db-max-conns", "3"})
	require.NoError(t, err)
	assert.Equal(t, ":7001", cfg.HTTPAddr)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, 3, cfg.DB.MaxOpenConns)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadRequiresSecret(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("BOOKSHELF_JWT_SECRET", "")
	t.Setenv("BOOKSHELF_DB_USER", "app")

	_, err := Load(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("BOOKSHELF_DB_PORT", "not-a-port")

	_, err := Load(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BOOKSHELF_DB_PORT")
}

func TestMemoryStoreNeedsNoDatabase(t *testing.T) {
	cfg := Defaults()
	cfg.Store = StoreMemory
	cfg.DB.Host = ""
	cfg.TokenSecret = "x"
	require.NoError(t, cfg.Validate())

	cfg.Store = "redis"
	require.Error(t, cfg.Validate())
}

func TestLoadDatabaseIgnoresTokenSettings(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("BOOKSHELF_JWT_SECRET", "")
	t.Setenv("BOOKSHELF_DB_USER", "")

	_, err := LoadDatabase([]string{"-db-user", "migrator", "-db-name", "books"})
	require.NoError(t, err)

	_, err = LoadDatabase([]string{"-db-user", ""})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_USER")
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
