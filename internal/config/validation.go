package config

import (
	"fmt"
	"net/url"
	"strings"

	"authhub/internal/storage"
	"authhub/pkg/logging"
)

// Validate checks c and returns a *ConfigurationErrorCollection listing every
// problem, or nil.
func (c Config) Validate() error {
	errs := &ConfigurationErrorCollection{}

	if strings.TrimSpace(c.BaseURL) == "" {
		errs.Add("baseURL", "is required",
			fmt.Sprintf("Set baseURL in %s or export %s", configFileName, EnvBaseURL))
	} else if err := validateHTTPURL(c.BaseURL); err != nil {
		errs.Add("baseURL", err.Error())
	}

	if strings.TrimSpace(c.App) == "" {
		errs.Add("app", "is required",
			fmt.Sprintf("Set app in %s or export %s", configFileName, EnvApp))
	}

	if c.RedirectURI != "" {
		if err := validateHTTPURL(c.RedirectURI); err != nil {
			errs.Add("redirectURI", err.Error())
		}
	}

	if _, err := storage.ParseMode(c.Storage.Mode); err != nil {
		errs.Add("storage.mode", err.Error(), "Use one of: durable, session, memory, cookie")
	}

	if c.Refresh.ThresholdSeconds < 0 {
		errs.Add("refresh.thresholdSeconds", "must not be negative")
	}
	if c.HTTP.TimeoutSeconds < 0 {
		errs.Add("http.timeoutSeconds", "must not be negative")
	}
	if c.HTTP.RateLimit < 0 {
		errs.Add("http.rateLimit", "must not be negative")
	}
	if c.Callback.Port < 0 || c.Callback.Port > 65535 {
		errs.Add("callback.port", fmt.Sprintf("must be between 0 and 65535, got %d", c.Callback.Port))
	}
	if c.Callback.Path != "" && !strings.HasPrefix(c.Callback.Path, "/") {
		errs.Add("callback.path", "must start with '/'")
	}
	if c.LogLevel != "" {
		if _, err := logging.ParseLevel(c.LogLevel); err != nil {
			errs.Add("logLevel", err.Error())
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("must include a host")
	}
	return nil
}
