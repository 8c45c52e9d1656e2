// Package config loads authhub's configuration.
//
// Configuration is read from config.yaml inside a single directory. The
// default directory is ~/.config/authhub; commands accept --config-path to
// point elsewhere. A missing file is not an error: defaults apply.
//
// Values are layered, later sources winning:
//
//  1. built-in defaults (DefaultConfig)
//  2. config.yaml
//  3. environment variables (AUTHHUB_BASE_URL, AUTHHUB_APP, AUTHHUB_API_KEY,
//     AUTHHUB_STORAGE, AUTHHUB_LOG_LEVEL)
//  4. command-line flags, applied by the cmd package
//
// Example config.yaml:
//
//	baseURL: https://auth.example.com
//	app: notes
//	storage:
//	  mode: durable
//	refresh:
//	  autoRefresh: true
//	  thresholdSeconds: 60
//	  maxIntervalSeconds: 3600
//	http:
//	  timeoutSeconds: 30
//	callback:
//	  port: 3000
//	  path: /oauth/callback
//
// Validate reports every problem at once as a *ConfigurationErrorCollection.
package config
