package config

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/coopledger/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_SOURCE", "postgres://ledger@localhost/ledger")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, int32(20), cfg.DBMaxConns)
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, 5*time.Minute, cfg.StatementCacheTTL)
	assert.Equal(t, "0 2 * * *", cfg.IntegrityCron)
	assert.False(t, cfg.IsProduction())
}

func TestLoadRequiresDBSourceForPostgres(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_SOURCE", "")
	t.Setenv("STORE_DRIVER", "postgres")

	_, err := Load()
	assert.ErrorContains(t, err, "DB_SOURCE")
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_DRIVER", "mysql")
	_, err := Load()
	assert.ErrorContains(t, err, "STORE_DRIVER")

	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("STATEMENT_CACHE_TTL", "soon")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STORE_DRIVER=sqlite\nSERVER_PORT=9090\n"), 0o600))
	t.Setenv("SERVER_PORT", "7070")
	t.Cleanup(func() { _ = os.Unsetenv("STORE_DRIVER") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver, "unset variables are filled from .env")
	assert.Equal(t, "7070", cfg.Port, "the environment wins over .env")
}

func TestOpenSQLiteStore(t *testing.T) {
	cfg := &Config{StoreDriver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "ledger.db"), AutoMigrate: true, DBMaxConns: 1}
	st, err := cfg.OpenStore(context.Background())
	require.NoError(t, err)
	defer st.Close()

	acct, err := st.CreateAccount(context.Background(), domain.NewAccount{Kind: domain.KindMember, Number: "M-1", Name: "Ana"})
	require.NoError(t, err)
	assert.True(t, acct.Balance.IsZero())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("dropped")
	logger.Warn("kept", slog.String("k", "v"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "v", line["k"])

	assert.Equal(t, slog.LevelInfo, parseLevel("chatty"))
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
}
