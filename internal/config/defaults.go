package config

const (
	DefaultStorageMode      = "durable"
	DefaultThresholdSeconds = 60
	DefaultTimeoutSeconds   = 30
	DefaultCallbackPort     = 3000
	DefaultCallbackPath     = "/oauth/callback"
	DefaultCallbackTimeout  = 300
	DefaultLogLevel         = "info"
)

// DefaultConfig returns the built-in configuration. BaseURL and App have no
// default and must be provided.
func DefaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			Mode: DefaultStorageMode,
		},
		Refresh: RefreshConfig{
			AutoRefresh:      true,
			ThresholdSeconds: DefaultThresholdSeconds,
		},
		HTTP: HTTPConfig{
			TimeoutSeconds: DefaultTimeoutSeconds,
		},
		Callback: CallbackConfig{
			Port:           DefaultCallbackPort,
			Path:           DefaultCallbackPath,
			TimeoutSeconds: DefaultCallbackTimeout,
		},
		LogLevel: DefaultLogLevel,
	}
}
