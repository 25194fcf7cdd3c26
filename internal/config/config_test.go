package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Chain.RPCTimeout)
	assert.Equal(t, 8, cfg.Reconcile.Concurrency)
	assert.Equal(t, int64(25<<20), cfg.Storage.MaxUpload)
	assert.False(t, cfg.Chain.Enabled())
	assert.False(t, cfg.Storage.Enabled())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CHAIN_RPC_URL", "http://localhost:8545")
	t.Setenv("ESCROW_CONTRACT_ADDRESS", "0x5FbDB2315678afecb367f032d93F642f64180aa3")
	t.Setenv("RECONCILE_CONCURRENCY", "3")

	cfg, err := Load(writeConfig(t, "chain:\n  chain_id: 31337\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Chain.Enabled())
	assert.Equal(t, int64(31337), cfg.Chain.ChainID)
	assert.Equal(t, 3, cfg.Reconcile.Concurrency)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"unknown driver", "database:\n  driver: mysql\n", true},
		{"auth without secret", "auth:\n  enabled: true\n", true},
		{"auth with secret", "auth:\n  enabled: true\n  jwt_secret: s3cret\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			_, err := Load(writeConfig(t, tt.body))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", DBName: "gig", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=gig sslmode=disable", pg.DSN())

	pg.URL = "postgres://u:p@db/gig"
	assert.Equal(t, "postgres://u:p@db/gig", pg.DSN())

	lite := DatabaseConfig{Driver: "sqlite", Path: "/tmp/x.db"}
	assert.Contains(t, lite.DSN(), "file:/tmp/x.db?")
}
