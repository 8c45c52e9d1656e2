package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.BaseURL = "https://auth.example.com"
	cfg.App = "notes"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Config)
		wantFields []string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:       "missing base URL and app",
			mutate:     func(c *Config) { c.BaseURL = ""; c.App = " " },
			wantFields: []string{"baseURL", "app"},
		},
		{
			name:       "base URL without scheme",
			mutate:     func(c *Config) { c.BaseURL = "auth.example.com" },
			wantFields: []string{"baseURL"},
		},
		{
			name:       "unknown storage mode",
			mutate:     func(c *Config) { c.Storage.Mode = "floppy" },
			wantFields: []string{"storage.mode"},
		},
		{
			name: "negative numbers",
			mutate: func(c *Config) {
				c.Refresh.ThresholdSeconds = -1
				c.HTTP.TimeoutSeconds = -1
				c.HTTP.RateLimit = -2
			},
			wantFields: []string{"refresh.thresholdSeconds", "http.timeoutSeconds", "http.rateLimit"},
		},
		{
			name:       "callback settings",
			mutate:     func(c *Config) { c.Callback.Port = 70000; c.Callback.Path = "cb" },
			wantFields: []string{"callback.port", "callback.path"},
		},
		{
			name:       "bad redirect and log level",
			mutate:     func(c *Config) { c.RedirectURI = "ftp://x"; c.LogLevel = "chatty" },
			wantFields: []string{"redirectURI", "logLevel"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}

			var errs *ConfigurationErrorCollection
			require.True(t, errors.As(err, &errs), "expected collection, got %T", err)
			var fields []string
			for _, e := range errs.Errors {
				fields = append(fields, e.Field)
				assert.Equal(t, "validation", e.ErrorType)
			}
			assert.Equal(t, tt.wantFields, fields)
		})
	}
}

func TestConfigurationErrorCollection_Messages(t *testing.T) {
	errs := &ConfigurationErrorCollection{}
	assert.Equal(t, "no configuration errors", errs.Error())

	errs.Add("app", "is required", "export AUTHHUB_APP")
	assert.Equal(t, "config field 'app': is required", errs.Error())

	errs.Add("baseURL", "is required")
	assert.Contains(t, errs.Error(), "2 configuration errors")
	assert.Contains(t, errs.DetailedReport(), "export AUTHHUB_APP")
}
