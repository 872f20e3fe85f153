package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ROOM_FOCUS_MINUTES", "")
	t.Setenv("ROOM_TICK_INTERVAL", "")
	t.Setenv("WS_REQUIRE_AUTH", "")

	cfg := Load()

	assert.Equal(t, DefaultRoom(), cfg.Room)
	assert.True(t, cfg.Gateway.RequireAuth)
	assert.Equal(t, 72*time.Hour, cfg.TokenTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ROOM_FOCUS_MINUTES", "50")
	t.Setenv("ROOM_TICK_INTERVAL", "250ms")
	t.Setenv("WS_REQUIRE_AUTH", "false")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")

	cfg := Load()

	assert.Equal(t, 50, cfg.Room.FocusMinutes)
	assert.Equal(t, 250*time.Millisecond, cfg.Room.TickInterval)
	assert.False(t, cfg.Gateway.RequireAuth)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("ROOM_FOCUS_MINUTES", "-3")
	t.Setenv("ROOM_TICK_INTERVAL", "soon")
	t.Setenv("WS_REQUIRE_AUTH", "maybe")

	cfg := Load()

	assert.Equal(t, 25, cfg.Room.FocusMinutes)
	assert.Equal(t, time.Second, cfg.Room.TickInterval)
	assert.True(t, cfg.Gateway.RequireAuth)
}
