package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseOrigins(t *testing.T) {
	assert.Nil(t, parseOrigins(""))
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, parseOrigins(" https://a.example, ,https://b.example "))
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("EXPIRY_SWEEP_INTERVAL_SECONDS", "5")
	t.Setenv("MAX_DB_CONNS", "not-a-number")

	cfg := Load()

	assert.Equal(t, 5*time.Second, cfg.ExpirySweepInterval)
	assert.Equal(t, int32(16), cfg.MaxDBConns)
	assert.Equal(t, 30*time.Minute, cfg.ContentCacheTTL)
}
