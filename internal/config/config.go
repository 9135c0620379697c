// Package config loads the hook configuration flat-manager hands us: a
// JSON file plus a small set of FLAT_MANAGER_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Configuration is everything the publish and review hooks need to talk
// to the backend and flat-manager.
type Configuration struct {
	BackendURL       string `koanf:"backend_url" validate:"required,url"`
	FlatManagerURL   string `koanf:"flat_manager_url" validate:"required,url"`
	FlatManagerToken string `koanf:"flat_manager_token" validate:"required"`

	// ValidationObserveOnly reports validation failures without
	// blocking builds on them.
	ValidationObserveOnly bool `koanf:"validation_observe_only"`

	// LintTimeout bounds each external validator run, in seconds.
	// 0 disables the timeout.
	LintTimeout int `koanf:"lint_timeout" validate:"omitempty,min=1,max=86400"`

	// JobID, BuildID and IsRepublish come from the environment;
	// flat-manager sets them per hook invocation.
	JobID       int64 `koanf:"job_id"`
	BuildID     int64 `koanf:"build_id"`
	IsRepublish bool  `koanf:"is_republish"`
}

// envKeys are the only environment variables read; everything else in
// the FLAT_MANAGER_ namespace belongs to flat-manager itself.
var envKeys = map[string]string{
	"FLAT_MANAGER_JOB_ID":       "job_id",
	"FLAT_MANAGER_BUILD_ID":     "build_id",
	"FLAT_MANAGER_IS_REPUBLISH": "is_republish",
}

// Load reads the config file and overlays the per-invocation
// environment variables on top.
func Load(configPath string) (*Configuration, error) {
	k := koanf.New(".")

	if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("config file %s: %w", configPath, err)
	}
	if err := k.Load(file.Provider(configPath), json.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := k.Load(env.Provider("FLAT_MANAGER_", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Configuration
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg.BackendURL = strings.TrimSuffix(cfg.BackendURL, "/")
	cfg.FlatManagerURL = strings.TrimSuffix(cfg.FlatManagerURL, "/")

	return &cfg, nil
}

// envTransform maps the known environment variables to config keys and
// drops everything else.
func envTransform(s string) string {
	return envKeys[s]
}
