package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SECRET_KEY", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/api/v1", cfg.APIV1)
	assert.Equal(t, 30*time.Minute, cfg.AccessTokenTTL())
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL())
	assert.Equal(t, int64(50<<20), cfg.MaxFileSize)
	assert.Equal(t, "uploadsdoc", cfg.MinioBucket)
	assert.False(t, cfg.SearchEnabled())
}

func TestLoadPrefixedOverridesPlain(t *testing.T) {
	t.Setenv("SECRET_KEY", "test-secret")
	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "15")
	t.Setenv("LMS_ACCESS_TOKEN_EXPIRE_MINUTES", "45")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, cfg.AccessTokenTTL())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("SECRET_KEY", "")
	t.Setenv("LMS_SECRET_KEY", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Config{SecretKey: "s", Algorithm: "RS256", AccessTokenExpireMinutes: 1, RefreshTokenExpireDays: 1, MaxFileSize: 1}
	assert.Error(t, cfg.Validate())

	cfg.Algorithm = "hs512"
	assert.NoError(t, cfg.Validate())

	cfg.RefreshTokenExpireDays = 0
	assert.Error(t, cfg.Validate())
}

func TestDSN(t *testing.T) {
	cfg := Config{DBHost: "db", DBUser: "u", DBPassword: "p", DBName: "lms", DBPort: "5432"}
	assert.Equal(t, "host=db user=u password=p dbname=lms port=5432 sslmode=disable", cfg.DSN())

	cfg.DatabaseURL = "postgres://x"
	assert.Equal(t, "postgres://x", cfg.DSN())
}

func TestEventsEnabled(t *testing.T) {
	cfg := Config{KafkaBrokers: []string{"k1:9092"}}
	assert.True(t, cfg.EventsEnabled())

	cfg.KafkaBrokers = nil
	assert.False(t, cfg.EventsEnabled())

	cfg.KafkaBrokers = []string{""}
	assert.False(t, cfg.EventsEnabled())
}
