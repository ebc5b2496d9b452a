package config

import (
	"testing"
)

func TestValidateConfig_ValidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Editor = "/bin/sh -c true"

	errors := ValidateConfig(cfg)
	if len(errors) != 0 {
		t.Errorf("expected no validation errors, got %d: %v", len(errors), errors)
	}
}

func TestValidateConfig_RelativeSudoersPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Editor = "/bin/sh"
	cfg.SudoersPath = "etc/sudoers"

	errors := ValidateConfig(cfg)
	if len(errors) == 0 {
		t.Fatal("expected validation error for relative sudoers_path")
	}

	foundError := false
	for _, err := range errors {
		if err.Severity == "error" && err.Field == "visudo.sudoers_path" {
			foundError = true
			break
		}
	}
	if !foundError {
		t.Errorf("expected error for visudo.sudoers_path, got: %v", errors)
	}
}

func TestValidateConfig_RelativeEditor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Editor = "vim"

	errors := ValidateConfig(cfg)

	foundError := false
	for _, err := range errors {
		if err.Severity == "error" && err.Field == "visudo.editor" {
			foundError = true
			break
		}
	}
	if !foundError {
		t.Errorf("expected error for visudo.editor, got: %v", errors)
	}
}

func TestValidateConfig_MissingEditorIsWarning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Editor = "/nonexistent/bin/editor"

	errors := ValidateConfig(cfg)
	if len(errors) != 1 {
		t.Fatalf("expected 1 validation issue, got %d: %v", len(errors), errors)
	}
	if errors[0].Severity != "warning" {
		t.Errorf("severity: got %q, want %q", errors[0].Severity, "warning")
	}
}

func TestValidateConfig_NegativeOwner(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Editor = "/bin/sh"
	cfg.OwnerUID = -1
	cfg.OwnerGID = -2

	errors := ValidateConfig(cfg)
	fields := map[string]bool{}
	for _, err := range errors {
		if err.Severity == "error" {
			fields[err.Field] = true
		}
	}
	for _, want := range []string{"visudo.owner_uid", "visudo.owner_gid"} {
		if !fields[want] {
			t.Errorf("expected error for %s, got: %v", want, errors)
		}
	}
}

func TestValidationError_Error(t *testing.T) {
	ve := ValidationError{Field: "visudo.editor", Message: "bad", Severity: "error"}
	if got, want := ve.Error(), "[error] visudo.editor: bad"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
