package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidationError represents a configuration validation issue.
type ValidationError struct {
	Field    string // e.g., "visudo.editor"
	Message  string // Human-readable description
	Severity string // "error" or "warning"
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Field, e.Message)
}

// ValidateConfig validates configuration and returns validation errors.
func ValidateConfig(cfg *Config) []ValidationError {
	var errors []ValidationError

	// Rule 1: sudoers_path must be absolute (severity: error)
	if cfg.SudoersPath != "" && !filepath.IsAbs(cfg.SudoersPath) {
		errors = append(errors, ValidationError{
			Field:    "visudo.sudoers_path",
			Message:  fmt.Sprintf("path %q must be absolute", cfg.SudoersPath),
			Severity: "error",
		})
	}

	// Rule 2: editor must name an absolute program path (severity: error)
	// A missing program is only a warning: an env override may still apply.
	if editor := strings.Fields(cfg.Editor); len(editor) > 0 {
		switch {
		case !filepath.IsAbs(editor[0]):
			errors = append(errors, ValidationError{
				Field:    "visudo.editor",
				Message:  fmt.Sprintf("editor %q must be an absolute path", editor[0]),
				Severity: "error",
			})
		default:
			if _, err := os.Stat(editor[0]); err != nil {
				errors = append(errors, ValidationError{
					Field:    "visudo.editor",
					Message:  fmt.Sprintf("editor %q not found", editor[0]),
					Severity: "warning",
				})
			}
		}
	}

	// Rule 3: ownership ids must be non-negative (severity: error)
	if cfg.OwnerUID < 0 {
		errors = append(errors, ValidationError{
			Field:    "visudo.owner_uid",
			Message:  fmt.Sprintf("uid %d is negative", cfg.OwnerUID),
			Severity: "error",
		})
	}
	if cfg.OwnerGID < 0 {
		errors = append(errors, ValidationError{
			Field:    "visudo.owner_gid",
			Message:  fmt.Sprintf("gid %d is negative", cfg.OwnerGID),
			Severity: "error",
		})
	}

	return errors
}
