package config

import "time"

// Config is the top-level configuration.
type Config struct {
	BaseURL     string `yaml:"baseURL"`
	App         string `yaml:"app"`
	APIKey      string `yaml:"apiKey,omitempty"`
	RedirectURI string `yaml:"redirectURI,omitempty"` // overrides the loopback callback URL

	Storage  StorageConfig  `yaml:"storage"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	HTTP     HTTPConfig     `yaml:"http"`
	Callback CallbackConfig `yaml:"callback"`

	LogLevel string `yaml:"logLevel,omitempty"`
}

// StorageConfig selects the credential store variant.
type StorageConfig struct {
	Mode string `yaml:"mode"`          // durable, session, memory or cookie
	Dir  string `yaml:"dir,omitempty"` // durable store directory
}

// RefreshConfig tunes the refresh engine.
type RefreshConfig struct {
	AutoRefresh      bool `yaml:"autoRefresh"`
	ThresholdSeconds int  `yaml:"thresholdSeconds"`
	// MaxIntervalSeconds caps a single proactive timer. 0 uses the engine
	// default, a negative value removes the cap.
	MaxIntervalSeconds int `yaml:"maxIntervalSeconds"`
}

// HTTPConfig configures calls to the identity service.
type HTTPConfig struct {
	TimeoutSeconds int     `yaml:"timeoutSeconds"`
	RateLimit      float64 `yaml:"rateLimit,omitempty"` // requests per second, 0 disables
	RateBurst      int     `yaml:"rateBurst,omitempty"`
}

// CallbackConfig configures the loopback login callback server.
type CallbackConfig struct {
	Port           int    `yaml:"port"`
	Path           string `yaml:"path"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// HTTPTimeout returns the per-request timeout.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// CallbackTimeout returns how long a login waits for its callback.
func (c Config) CallbackTimeout() time.Duration {
	return time.Duration(c.Callback.TimeoutSeconds) * time.Second
}

// MaxRefreshInterval returns the engine's timer cap.
func (c Config) MaxRefreshInterval() time.Duration {
	if c.Refresh.MaxIntervalSeconds < 0 {
		return -1
	}
	return time.Duration(c.Refresh.MaxIntervalSeconds) * time.Second
}
