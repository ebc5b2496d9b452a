package config

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/i9wa4/visudo/internal/policyfile"
)

//go:embed visudo.default.toml
var defaultConfigBytes []byte

// DefaultEditor is run when no override is configured.
const DefaultEditor = "/usr/bin/editor"

// SystemConfigPath is the config file consulted when neither an explicit
// path nor $VISUDO_CONFIG is given. Exported for tests.
var SystemConfigPath = "/etc/visudo.toml"

// Config holds visudo configuration loaded from TOML file.
// All settings live in the [visudo] section.
type Config struct {
	// Paths
	SudoersPath string `toml:"sudoers_path"`

	// Editor selection
	Editor    string `toml:"editor"`
	EnvEditor bool   `toml:"env_editor"` // honor SUDO_EDITOR / VISUAL / EDITOR

	// Ownership applied to the installed policy file and temp copy
	OwnerUID int `toml:"owner_uid"`
	OwnerGID int `toml:"owner_gid"`

	Debug bool `toml:"debug"`
}

// fileLayout is the on-disk shape: one [visudo] table.
type fileLayout struct {
	Visudo toml.Primitive `toml:"visudo"`
}

// DefaultConfig returns a Config with sane default values.
func DefaultConfig() *Config {
	return &Config{
		SudoersPath: policyfile.DefaultPath,
		Editor:      DefaultEditor,
		EnvEditor:   true,
		OwnerUID:    policyfile.Root.UID,
		OwnerGID:    policyfile.Root.GID,
		Debug:       false,
	}
}

// Owner returns the configured privileged identity.
func (c *Config) Owner() policyfile.Owner {
	return policyfile.Owner{UID: c.OwnerUID, GID: c.OwnerGID}
}

// decode overlays the [visudo] section of data onto cfg.
func decode(data string, cfg *Config) error {
	var layout fileLayout
	md, err := toml.Decode(data, &layout)
	if err != nil {
		return err
	}
	if !md.IsDefined("visudo") {
		return nil
	}
	if err := md.PrimitiveDecode(layout.Visudo, cfg); err != nil {
		return fmt.Errorf("decoding [visudo] section: %w", err)
	}
	for _, key := range md.Undecoded() {
		log.Printf("config warning: unknown key %q\n", key.String())
	}
	return nil
}

// loadEmbeddedConfig loads configuration from embedded visudo.default.toml.
func loadEmbeddedConfig() (*Config, error) {
	cfg := DefaultConfig()
	if err := decode(string(defaultConfigBytes), cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return cfg, nil
}

// LoadConfig loads configuration from a TOML file.
// If path is empty, tries $VISUDO_CONFIG and then SystemConfigPath.
// If no file is found, the embedded default configuration is returned.
func LoadConfig(path string) (*Config, error) {
	cfg, err := loadEmbeddedConfig()
	if err != nil {
		return nil, err
	}

	configPath := path
	if configPath == "" {
		configPath = ResolveConfigPath()
		if configPath == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	validationErrors := ValidateConfig(cfg)
	var errors []string
	for _, ve := range validationErrors {
		if ve.Severity == "error" {
			errors = append(errors, ve.Error())
		} else {
			log.Printf("config warning: %s\n", ve.Error())
		}
	}
	if len(errors) > 0 {
		return nil, fmt.Errorf("config validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return cfg, nil
}

// ResolveConfigPath returns the first config file in the fallback chain.
// Priority:
// 1. VISUDO_CONFIG env var (returned even if missing, so typos surface)
// 2. SystemConfigPath, if it exists
// Returns empty string if no config file is found.
func ResolveConfigPath() string {
	if v := os.Getenv("VISUDO_CONFIG"); v != "" {
		return v
	}
	if _, err := os.Stat(SystemConfigPath); err == nil {
		return SystemConfigPath
	}
	return ""
}

// ResolveSudoersPath returns the policy file to operate on.
// Priority:
// 1. flagPath (from -f/--file)
// 2. configPath (sudoers_path from config file)
// 3. policyfile.DefaultPath
func ResolveSudoersPath(flagPath, configPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if configPath != "" {
		return configPath
	}
	return policyfile.DefaultPath
}
