package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("BRIDGE_ASSIGNMENT_RECHECK_DELAY", "")
	t.Setenv("BRIDGE_TICKET_RUN_TIMEOUT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Bridge.AssignmentRecheckDelay)
	assert.Equal(t, time.Minute, cfg.Bridge.TicketRunTimeout)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "dynamo")

	_, err := Load()
	require.Error(t, err)
}

func TestDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("SLACK_TIMEOUT", "soon")
	assert.Equal(t, 7*time.Second, getEnvAsDuration("SLACK_TIMEOUT", 7*time.Second))

	t.Setenv("SLACK_TIMEOUT", "250ms")
	assert.Equal(t, 250*time.Millisecond, getEnvAsDuration("SLACK_TIMEOUT", 7*time.Second))
}
