package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	HomeAssistant HomeAssistantConfig `mapstructure:"home_assistant"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	WebSocket     WebSocketConfig     `mapstructure:"websocket"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Render        RenderConfig        `mapstructure:"render"`
	Displays      []DisplayConfig     `mapstructure:"displays"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MigrationsPath string `mapstructure:"migrations_path"`
	MaxConnections int    `mapstructure:"max_connections"`
	// TemplateSeedPath optionally points at a YAML file of page templates
	// imported on startup.
	TemplateSeedPath string `mapstructure:"template_seed_path"`
}

type HomeAssistantConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type WebSocketConfig struct {
	PingInterval int `mapstructure:"ping_interval"`
	PongTimeout  int `mapstructure:"pong_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
}

// RenderConfig tunes the rendering pipeline shared by all displays.
type RenderConfig struct {
	// ImagePolicy is "strict" (URL sources must match the allowlist) or
	// "permissive".
	ImagePolicy string `mapstructure:"image_policy"`
	// AllowedImagePrefixes lists URL prefixes accepted under the strict
	// policy.
	AllowedImagePrefixes []string `mapstructure:"allowed_image_prefixes"`
	// QueueWarnDepth is the per-device queue depth that triggers a
	// warning log.
	QueueWarnDepth int `mapstructure:"queue_warn_depth"`
}

// DisplayConfig describes one display target and its optional rotation.
type DisplayConfig struct {
	Name     string         `mapstructure:"name"`
	Width    int            `mapstructure:"width"`
	Height   int            `mapstructure:"height"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

type RotationConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// DefaultDurationSeconds applies to pages without their own duration.
	DefaultDurationSeconds float64 `mapstructure:"default_duration_seconds"`
	// PagesPath points at a YAML or JSON file holding the rotation's page
	// list.
	PagesPath string `mapstructure:"pages_path"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.BindEnv("home_assistant.url", "HOME_ASSISTANT_URL")
	viper.BindEnv("home_assistant.token", "HOME_ASSISTANT_TOKEN")
	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("logging.level", "LOG_LEVEL")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 3100)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.mode", "release")

	viper.SetDefault("database.path", "./data/display.db")
	viper.SetDefault("database.migrations_path", "./migrations")
	viper.SetDefault("database.max_connections", 4)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("websocket.ping_interval", 30)
	viper.SetDefault("websocket.pong_timeout", 60)
	viper.SetDefault("websocket.write_timeout", 10)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.prefix", "pma_display")

	viper.SetDefault("render.image_policy", "strict")
	viper.SetDefault("render.queue_warn_depth", 20)
}

// Validate checks the configuration for completeness and correctness.
func (c *Config) Validate() error {
	var errors []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errors = append(errors, "server.port must be between 1 and 65535")
	}
	if c.Server.Host == "" {
		errors = append(errors, "server.host is required")
	}
	if c.Database.Path == "" {
		errors = append(errors, "database.path is required")
	}
	if c.Render.ImagePolicy != "strict" && c.Render.ImagePolicy != "permissive" {
		errors = append(errors, "render.image_policy must be \"strict\" or \"permissive\"")
	}

	seen := map[string]bool{}
	for i, d := range c.Displays {
		if d.Name == "" {
			errors = append(errors, fmt.Sprintf("displays[%d].name is required", i))
		} else if seen[d.Name] {
			errors = append(errors, fmt.Sprintf("displays[%d].name %q is duplicated", i, d.Name))
		}
		seen[d.Name] = true
		if d.Width <= 0 || d.Height <= 0 {
			errors = append(errors, fmt.Sprintf("displays[%d] dimensions must be positive", i))
		}
		if d.Rotation.Enabled && d.Rotation.PagesPath == "" {
			errors = append(errors, fmt.Sprintf("displays[%d].rotation.pages_path is required when rotation is enabled", i))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("config errors: %s", strings.Join(errors, "; "))
	}
	return nil
}
