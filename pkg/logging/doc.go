// Package logging provides structured logging for authhub, built on log/slog.
//
// Every record carries a "subsystem" attribute so output from the refresh
// engine, the storage layer and the CLI can be filtered independently.
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Refresh", "Scheduled next refresh in %s", delay)
//	logging.Error("Storage", err, "Failed to persist tokens")
//
// # Audit records
//
// Security-relevant events such as token storage, deletion and refresh-token
// reuse are emitted through Audit, which produces a record whose message starts
// with SECURITY_AUDIT and carries an "event" attribute:
//
//	logging.Audit("token_reuse_detected", "base_url", baseURL)
//
// Token values must never be passed to any logging function. Wrap them in
// oauth.RedactedToken when a log line needs to mention one.
package logging
