package crate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the persisted config file under the crates root.
const ConfigFileName = "config.toml"

// Config is the persisted <crates_root>/config.toml document. An absent
// file means the legacy defaults {mixed, mixed}; a freshly initialized
// root defaults to {lower, mixed}.
type Config struct {
	Prefix        PrefixStyle
	ArchivePrefix PrefixStyle
}

// rawConfig is the TOML wire shape; Config translates to/from it so the
// rest of the codebase works with the typed PrefixStyle enum.
type rawConfig struct {
	Prefix        string `toml:"prefix"`
	ArchivePrefix string `toml:"archive_prefix"`
}

// LegacyConfig is the config assumed when config.toml is absent.
func LegacyConfig() Config {
	return Config{Prefix: Mixed, ArchivePrefix: Mixed}
}

// DefaultConfig is the config written by "init" for a brand-new crates root.
func DefaultConfig() Config {
	return Config{Prefix: Lower, ArchivePrefix: Mixed}
}

// ConfigPath returns "<cratesRoot>/config.toml".
func ConfigPath(cratesRoot string) string {
	return filepath.Join(cratesRoot, ConfigFileName)
}

// LoadConfig reads config.toml from cratesRoot. If the file is absent, it
// returns LegacyConfig with no error: an absent config.toml means a
// pre-existing crates root using the legacy {mixed, mixed} layout.
func LoadConfig(cratesRoot string) (Config, error) {
	path := ConfigPath(cratesRoot)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return LegacyConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var raw rawConfig
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	prefix, err := ParsePrefixStyle(raw.Prefix)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	archivePrefix, err := ParsePrefixStyle(raw.ArchivePrefix)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return Config{Prefix: prefix, ArchivePrefix: archivePrefix}, nil
}

// SaveConfig writes cfg as config.toml under cratesRoot.
func SaveConfig(cratesRoot string, cfg Config) error {
	raw := rawConfig{Prefix: cfg.Prefix.String(), ArchivePrefix: cfg.ArchivePrefix.String()}
	f, err := os.Create(ConfigPath(cratesRoot))
	if err != nil {
		return fmt.Errorf("failed to create config.toml: %w", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(raw)
}

// IsCaseInsensitiveFilesystem probes cratesRoot for case-insensitivity by
// checking whether an uppercased sibling of config.toml resolves to the
// same file. It writes nothing and reports false when config.toml is
// absent.
func IsCaseInsensitiveFilesystem(cratesRoot string) (bool, error) {
	path := ConfigPath(cratesRoot)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Nothing to probe against yet; a MIXED config written afterward
		// will be validated once the file exists.
		return false, nil
	} else if err != nil {
		return false, err
	}

	upperPath := filepath.Join(cratesRoot, "CONFIG.TOML")
	info, err := os.Stat(upperPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	lowerInfo, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return os.SameFile(info, lowerInfo), nil
}

// ValidateMixedOnCaseInsensitive aborts MIXED-prefix operations on a
// case-insensitive filesystem, per invariant 3 and testable property 6.
func ValidateMixedOnCaseInsensitive(cratesRoot string, style PrefixStyle) error {
	if style != Mixed {
		return nil
	}
	insensitive, err := IsCaseInsensitiveFilesystem(cratesRoot)
	if err != nil {
		return err
	}
	if insensitive {
		return fmt.Errorf("MIXED crate prefix is forbidden on a case-insensitive filesystem at %s", cratesRoot)
	}
	return nil
}
