package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[ServiceMode]bool
		wantErr bool
	}{
		{name: "http only", input: "http", want: map[ServiceMode]bool{ServiceModeHTTP: true}},
		{name: "both", input: "http,sweeper",
			want: map[ServiceMode]bool{ServiceModeHTTP: true, ServiceModeSweeper: true}},
		{name: "whitespace tolerated", input: " http , sweeper ",
			want: map[ServiceMode]bool{ServiceModeHTTP: true, ServiceModeSweeper: true}},
		{name: "empty", input: "", wantErr: true},
		{name: "only commas", input: ",,,", wantErr: true},
		{name: "unknown service", input: "http,worker", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseServices(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAppConfigDefaults(t *testing.T) {
	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.False(t, cfg.IsDev)
	assert.Equal(t, "http", cfg.Services)
	assert.True(t, cfg.IsHTTPServerEnabled())
	assert.False(t, cfg.IsSweeperEnabled())

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "uploads", cfg.Automation.UploadsDir)
	assert.Equal(t, "results", cfg.Automation.ResultsDir)
	assert.Equal(t, "scripts", cfg.Automation.ScriptsDir)
	assert.Equal(t, "python3", cfg.Automation.PythonBin)
	assert.Equal(t, 10*time.Minute, cfg.Sweeper.Interval)
	assert.Equal(t, 24*time.Hour, cfg.Sweeper.TTL)
	assert.Equal(t, "automation", cfg.Observability.StatsdPrefix)
	assert.False(t, cfg.Postgres.Enabled)
	assert.False(t, cfg.Redis.Enabled)
}

func TestAppConfigEnvOverrides(t *testing.T) {
	t.Setenv("DEV", "true")
	t.Setenv("SERVICES", "http,sweeper")
	t.Setenv("AUTOMATION_PYTHON_BIN", "/usr/local/bin/python3.12")
	t.Setenv("SWEEPER_TTL", "48h")

	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.True(t, cfg.IsDev)
	assert.True(t, cfg.IsHTTPServerEnabled())
	assert.True(t, cfg.IsSweeperEnabled())
	assert.Equal(t, "/usr/local/bin/python3.12", cfg.Automation.PythonBin)
	assert.Equal(t, 48*time.Hour, cfg.Sweeper.TTL)
}

func TestSanitizeGuardrails(t *testing.T) {
	cfg := AppConfig{
		Automation: AutomationConfig{DevCredits: -5},
		Sweeper:    SweeperConfig{Interval: time.Second, TTL: time.Minute},
		Notifier:   NotifierConfig{Timeout: -1, RetryLimit: 50},
		Observability: ObservabilityConfig{
			StatsdEnabled: true,
			StatsdAddr:    "",
		},
	}
	cfg.Sanitize()

	assert.Equal(t, "python3", cfg.Automation.PythonBin)
	assert.Equal(t, 0, cfg.Automation.DevCredits)
	assert.Equal(t, time.Minute, cfg.Sweeper.Interval)
	assert.Equal(t, 10*time.Minute, cfg.Sweeper.TTL)
	assert.Equal(t, 5*time.Second, cfg.Notifier.Timeout)
	assert.Equal(t, 10, cfg.Notifier.RetryLimit)
	assert.False(t, cfg.Observability.StatsdEnabled)
}

func TestEnabledServicesOnInvalidConfig(t *testing.T) {
	cfg := AppConfig{Services: "bogus"}
	assert.False(t, cfg.IsHTTPServerEnabled())
	assert.False(t, cfg.IsSweeperEnabled())
}
