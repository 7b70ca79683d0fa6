package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATABASE_DRIVER", "DATABASE_DSN", "UPLOAD_TTL", "DEFAULT_CHUNK_SIZE", "ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
	}
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test ,")

	LoadConfig()
	require.NotNil(t, Cfg)

	assert.Equal(t, "sqlite", Cfg.DatabaseDriver)
	assert.Equal(t, 24*time.Hour, Cfg.UploadTTL)
	assert.Equal(t, 500, Cfg.DefaultChunkSize)
	assert.Equal(t, 5000, Cfg.MaxChunkSize)
	assert.Equal(t, 50, Cfg.UpsertBatchSize)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, Cfg.AllowedOrigins)
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TJ_INT", "42")
	t.Setenv("TJ_BAD_INT", "forty")
	t.Setenv("TJ_DUR", "90m")
	t.Setenv("TJ_FLOAT", "2.5")

	assert.Equal(t, 42, getEnvAsInt("TJ_INT", 1))
	assert.Equal(t, 1, getEnvAsInt("TJ_BAD_INT", 1))
	assert.Equal(t, 7, getEnvAsInt("TJ_MISSING", 7))
	assert.Equal(t, 90*time.Minute, getEnvAsDuration("TJ_DUR", time.Hour))
	assert.Equal(t, 2.5, getEnvAsFloat("TJ_FLOAT", 1))
}
