package config

import (
	"fmt"
	"strings"
)

// ConfigurationError describes one problem with the configuration.
type ConfigurationError struct {
	FilePath    string   `json:"filePath,omitempty"`
	Field       string   `json:"field,omitempty"`
	ErrorType   string   `json:"errorType"` // parse, validation or io
	Message     string   `json:"message"`
	Details     string   `json:"details,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (ce ConfigurationError) Error() string {
	switch {
	case ce.Field != "":
		return fmt.Sprintf("config field '%s': %s", ce.Field, ce.Message)
	case ce.FilePath != "":
		return fmt.Sprintf("config %s: %s", ce.FilePath, ce.Message)
	default:
		return "config: " + ce.Message
	}
}

// DetailedError returns a multi-line description with suggestions.
func (ce ConfigurationError) DetailedError() string {
	parts := []string{ce.Error(), fmt.Sprintf("  Type: %s", ce.ErrorType)}
	if ce.Details != "" {
		parts = append(parts, fmt.Sprintf("  Details: %s", ce.Details))
	}
	if len(ce.Suggestions) > 0 {
		parts = append(parts, "  Suggestions:")
		for _, suggestion := range ce.Suggestions {
			parts = append(parts, fmt.Sprintf("    - %s", suggestion))
		}
	}
	return strings.Join(parts, "\n")
}

// NewConfigurationErrorWithDetails creates a ConfigurationError.
func NewConfigurationErrorWithDetails(filePath, field, errorType, message, details string, suggestions []string) ConfigurationError {
	return ConfigurationError{
		FilePath:    filePath,
		Field:       field,
		ErrorType:   errorType,
		Message:     message,
		Details:     details,
		Suggestions: suggestions,
	}
}

// ConfigurationErrorCollection holds multiple configuration errors
type ConfigurationErrorCollection struct {
	Errors []ConfigurationError `json:"errors"`
}

func (cec *ConfigurationErrorCollection) Error() string {
	switch len(cec.Errors) {
	case 0:
		return "no configuration errors"
	case 1:
		return cec.Errors[0].Error()
	}
	return fmt.Sprintf("%d configuration errors: %s (and %d more)",
		len(cec.Errors), cec.Errors[0].Error(), len(cec.Errors)-1)
}

// HasErrors returns true if there are any errors in the collection
func (cec *ConfigurationErrorCollection) HasErrors() bool {
	return len(cec.Errors) > 0
}

// Add appends a validation error for field.
func (cec *ConfigurationErrorCollection) Add(field, message string, suggestions ...string) {
	cec.Errors = append(cec.Errors, ConfigurationError{
		Field:       field,
		ErrorType:   "validation",
		Message:     message,
		Suggestions: suggestions,
	})
}

// DetailedReport returns every error with its details.
func (cec *ConfigurationErrorCollection) DetailedReport() string {
	if len(cec.Errors) == 0 {
		return "No configuration errors to report"
	}
	parts := make([]string, 0, len(cec.Errors))
	for _, err := range cec.Errors {
		parts = append(parts, err.DetailedError())
	}
	return strings.Join(parts, "\n")
}
