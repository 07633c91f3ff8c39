package session

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"

	"github.com/matheus3301/wpplink/internal/config"
)

const DefaultSessionName = "main"

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// Resolve determines the active session name using precedence:
// 1. flagOverride (--session flag)
// 2. config.toml default_session
// 3. "main"
// The result is validated before it is returned.
func Resolve(flagOverride string) (string, error) {
	name := flagOverride
	if name == "" {
		name = DefaultSessionName
		if cfg, err := config.Load(ConfigPath()); err == nil && cfg.DefaultSession != "" {
			name = cfg.DefaultSession
		}
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// ValidateName checks that name conforms to session naming rules.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid session name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}

// LoadConfig reads config.toml (falling back to defaults when absent) and
// applies the .env and environment overrides. A malformed file is an error.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(ConfigPath())
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ConfigPath(), err)
	}
	config.ApplyEnv(cfg, DotenvPath())
	return cfg, nil
}
