package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	apperrors "curator-backend/internal/errors"
)

// Load builds configuration from three layers, lowest priority first:
// in-code defaults, an optional YAML file, then environment variables.
// The merged result is validated before it is returned; an invalid
// configuration never reaches the services.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, apperrors.Configuration("CONFIG_READ", "failed to read configuration file").
					WithContext("path", path).
					WithCause(err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.Configuration("CONFIG_PARSE", "failed to parse configuration file").
				WithContext("path", path).
				WithCause(err)
		}
	}

	applyEnvironment(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvironment overlays environment variables, the highest-priority
// source. Only settings that plausibly differ per deployment are exposed.
func applyEnvironment(cfg *Config) {
	if v := os.Getenv("CURATOR_ENV"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("CURATOR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CURATOR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v, ok := lookupFloat("CURATOR_DUPLICATE_THRESHOLD"); ok {
		cfg.Routing.DuplicateThreshold = v
	}
	if v, ok := lookupFloat("CURATOR_HIGH_CONFIDENCE_THRESHOLD"); ok {
		cfg.Routing.HighConfidenceThreshold = v
	}
	if v, ok := lookupFloat("CURATOR_LOW_CONFIDENCE_THRESHOLD"); ok {
		cfg.Routing.LowConfidenceThreshold = v
	}

	if v := os.Getenv("CURATOR_DB_PROVIDER"); v != "" {
		cfg.Database.Provider = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Database.Region = v
	}
	if v := os.Getenv("CURATOR_FOLDER_TABLE"); v != "" {
		cfg.Database.FolderTable = v
	}
	if v := os.Getenv("CURATOR_ARTIFACT_TABLE"); v != "" {
		cfg.Database.ArtifactTable = v
	}
	if v := os.Getenv("CURATOR_AUDIT_TABLE"); v != "" {
		cfg.Database.AuditTable = v
	}
	if v := os.Getenv("CURATOR_DYNAMODB_ENDPOINT"); v != "" {
		cfg.Database.Endpoint = v
	}
}

func lookupFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
