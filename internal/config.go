package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/maplab/internal/discovery"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeJWT      = "jwt"
)

// Storage modes.
const (
	StorageModeSQLite = "sqlite"
	StorageModeFS     = "fs"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Storage   StorageConfig     `yaml:"storage"`
	Auth      AuthConfig        `yaml:"auth"`
	Relay     RelayConfig       `yaml:"relay"`
	Discovery DiscoveryConfig   `yaml:"discovery"`
	Events    EventsConfig      `yaml:"events"`
	Assistant AssistantConfig   `yaml:"assistant"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{&c.App, &c.Storage, &c.Auth, &c.Relay, &c.Events, &c.Assistant} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StorageConfig selects where room snapshots are kept and how often dirty
// rooms are flushed.
type StorageConfig struct {
	Mode          string        `yaml:"mode"`
	SQLite        PathConfig    `yaml:"sqlite"`
	FS            PathConfig    `yaml:"fs"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// PathConfig holds a filesystem location.
type PathConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = StorageModeSQLite
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(StorageModeSQLite, StorageModeFS)),
		validation.Field(&c.FlushInterval, validation.Required, validation.Min(100*time.Millisecond)),
	); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	path := c.SQLite.Path
	if c.Mode == StorageModeFS {
		path = c.FS.Path
	}
	if path == "" {
		return fmt.Errorf("storage: mode is %q but its path is empty", c.Mode)
	}
	return nil
}

// AuthConfig holds authentication configuration.
//
// Mode controls how participants are identified:
//   - "disabled" (default): identity is read from X-Participant-* headers
//     without verification, suitable for local dev.
//   - "jwt": HS256 tokens signed with Secret; Secret must be non-empty.
type AuthConfig struct {
	Mode   string `yaml:"mode"`
	Secret string `yaml:"secret"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeJWT)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeJWT && c.Secret == "" {
		return fmt.Errorf("auth: mode is %q but secret is empty", AuthModeJWT)
	}
	return nil
}

// JWTEnabled returns true when tokens are required.
func (c *AuthConfig) JWTEnabled() bool {
	return c.Mode == AuthModeJWT
}

// RelayConfig configures the Redis relay between instances. An empty
// RedisAddr disables it.
type RelayConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

// Enabled reports whether a relay is configured.
func (c *RelayConfig) Enabled() bool { return c.RedisAddr != "" }

// Validate validates the relay configuration.
func (c *RelayConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DB, validation.Min(0)),
		validation.Field(&c.ChannelPrefix, validation.When(c.Enabled(), validation.Required)),
	)
}

// DiscoveryConfig controls the mDNS advertisement.
type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
	Service  string `yaml:"service"`
}

// EventsConfig tunes the SSE stream.
type EventsConfig struct {
	SummaryThrottle time.Duration `yaml:"summary_throttle"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SummaryThrottle, validation.Min(time.Duration(0))),
	)
}

// AssistantConfig is the identity the MCP server edits boards as.
type AssistantConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Color    string `yaml:"color"`
	ReadOnly bool   `yaml:"read_only"`
}

// Validate validates the assistant configuration.
func (c *AssistantConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ID, validation.Required),
		validation.Field(&c.Name, validation.Required),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Storage: StorageConfig{
			Mode:          StorageModeSQLite,
			SQLite:        PathConfig{Path: "./maplab.db"},
			FS:            PathConfig{Path: "./boards"},
			FlushInterval: 5 * time.Second,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Relay: RelayConfig{
			ChannelPrefix: "maplab",
		},
		Discovery: DiscoveryConfig{
			Service: discovery.DefaultService,
		},
		Events: EventsConfig{
			SummaryThrottle: 2 * time.Second,
		},
		Assistant: AssistantConfig{
			ID:    "assistant",
			Name:  "Assistant",
			Color: "#7c3aed",
		},
	}
}
