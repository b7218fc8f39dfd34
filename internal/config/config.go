package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"trakt-toggl-sync/internal/domain"
)

// ConfigPathEnvVar optionally points at a YAML config file. Environment
// variables always win over the file.
const ConfigPathEnvVar = "CONFIG_PATH"

// Config holds everything a run needs. Loaded from defaults, then an
// optional YAML file, then environment variables.
type Config struct {
	Trakt TraktConfig `koanf:"trakt"`
	Toggl TogglConfig `koanf:"toggl"`
	Sync  SyncConfig  `koanf:"sync"`
	MySQL MySQLConfig `koanf:"mysql"`
}

type TraktConfig struct {
	ClientID     string `koanf:"client_id" validate:"required"`
	ClientSecret string `koanf:"client_secret" validate:"required"`
	HistoryDays  int    `koanf:"history_days" validate:"gt=0,lte=90"`
	TokenFile    string `koanf:"token_file" validate:"required"`
	BaseURL      string `koanf:"base_url" validate:"required,url"`
}

type TogglConfig struct {
	APIToken    string   `koanf:"api_token" validate:"required"`
	WorkspaceID int64    `koanf:"workspace_id" validate:"gt=0"`
	ProjectID   int64    `koanf:"project_id" validate:"gt=0"`
	Tags        []string `koanf:"tags"`
	BaseURL     string   `koanf:"base_url" validate:"required,url"`
}

type SyncConfig struct {
	// MatchGranularity rounds start timestamps before comparing them;
	// MatchTolerance is the residual drift still counted as the same entry.
	MatchGranularity time.Duration `koanf:"match_granularity" validate:"gt=0"`
	MatchTolerance   time.Duration `koanf:"match_tolerance" validate:"gte=0"`
	// MaxDuration clamps glitched runtimes; DefaultDuration, when nonzero,
	// substitutes for unknown runtimes instead of skipping the entry.
	MaxDuration     time.Duration `koanf:"max_duration" validate:"gt=0"`
	DefaultDuration time.Duration `koanf:"default_duration" validate:"gte=0"`
	Timezone        string        `koanf:"timezone"`
}

type MySQLConfig struct {
	// DSN enables the optional sync ledger when set.
	// e.g. user:pass@tcp(host:3306)/dbname?parseTime=true&multiStatements=true
	DSN string `koanf:"dsn"`
}

func defaults() *Config {
	return &Config{
		Trakt: TraktConfig{
			HistoryDays: 7,
			TokenFile:   ".trakt_tokens.json",
			BaseURL:     "https://api.trakt.tv",
		},
		Toggl: TogglConfig{
			BaseURL: "https://api.track.toggl.com",
		},
		Sync: SyncConfig{
			MatchGranularity: time.Minute,
			MatchTolerance:   2 * time.Minute,
			MaxDuration:      6 * time.Hour,
			DefaultDuration:  0,
			Timezone:         "UTC",
		},
	}
}

// envMappings translates the flat deployment environment variables into
// koanf paths. Unknown variables are ignored.
var envMappings = map[string]string{
	"TRAKT_CLIENT_ID":        "trakt.client_id",
	"TRAKT_CLIENT_SECRET":    "trakt.client_secret",
	"TRAKT_HISTORY_DAYS":     "trakt.history_days",
	"TRAKT_TOKEN_FILE":       "trakt.token_file",
	"TRAKT_BASE_URL":         "trakt.base_url",
	"TOGGL_API_TOKEN":        "toggl.api_token",
	"TOGGL_WORKSPACE_ID":     "toggl.workspace_id",
	"TOGGL_PROJECT_ID":       "toggl.project_id",
	"TOGGL_TAGS":             "toggl.tags",
	"TOGGL_BASE_URL":         "toggl.base_url",
	"SYNC_MATCH_GRANULARITY": "sync.match_granularity",
	"SYNC_MATCH_TOLERANCE":   "sync.match_tolerance",
	"SYNC_MAX_DURATION":      "sync.max_duration",
	"SYNC_DEFAULT_DURATION":  "sync.default_duration",
	"SYNC_TZ":                "sync.timezone",
	"MYSQL_DSN":              "mysql.dsn",
}

// Load reads configuration in layers: struct defaults, an optional YAML
// file named by CONFIG_PATH, then environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, &domain.ConfigError{Reason: "loading defaults", Err: err}
	}

	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, &domain.ConfigError{Reason: "loading config file " + path, Err: err}
		}
	}

	// Unknown variables and empty values are ignored; empty means unset in
	// the deployment environment. TOGGL_TAGS arrives comma-separated.
	envProvider := env.ProviderWithValue("", ".", func(key, value string) (string, any) {
		path, ok := envMappings[key]
		if !ok || value == "" {
			return "", nil
		}
		if path == "toggl.tags" {
			return path, splitTags(value)
		}
		return path, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, &domain.ConfigError{Reason: "loading environment", Err: err}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, &domain.ConfigError{Reason: "unmarshaling configuration", Err: err}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &domain.ConfigError{Reason: "invalid configuration", Err: describeValidation(err)}
	}
	return cfg, nil
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// describeValidation rewrites validator's struct-field messages in terms of
// the environment variables the operator actually sets.
func describeValidation(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		missing = append(missing, envNameForField(fe.Namespace()))
	}
	return fmt.Errorf("check %s", strings.Join(missing, ", "))
}

var fieldEnvNames = map[string]string{
	"Config.Trakt.ClientID":        "TRAKT_CLIENT_ID",
	"Config.Trakt.ClientSecret":    "TRAKT_CLIENT_SECRET",
	"Config.Trakt.HistoryDays":     "TRAKT_HISTORY_DAYS",
	"Config.Trakt.TokenFile":       "TRAKT_TOKEN_FILE",
	"Config.Trakt.BaseURL":         "TRAKT_BASE_URL",
	"Config.Toggl.APIToken":        "TOGGL_API_TOKEN",
	"Config.Toggl.WorkspaceID":     "TOGGL_WORKSPACE_ID",
	"Config.Toggl.ProjectID":       "TOGGL_PROJECT_ID",
	"Config.Toggl.BaseURL":         "TOGGL_BASE_URL",
	"Config.Sync.MatchGranularity": "SYNC_MATCH_GRANULARITY",
	"Config.Sync.MatchTolerance":   "SYNC_MATCH_TOLERANCE",
	"Config.Sync.MaxDuration":      "SYNC_MAX_DURATION",
	"Config.Sync.DefaultDuration":  "SYNC_DEFAULT_DURATION",
}

func envNameForField(namespace string) string {
	if name, ok := fieldEnvNames[namespace]; ok {
		return name
	}
	return namespace
}
