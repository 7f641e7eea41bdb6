package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Tiles     TilesConfig     `mapstructure:"tiles"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Detection DetectionConfig `mapstructure:"detection"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// TilesConfig points at the imagery provider. URLTemplate carries {z},
// {y} and {x} placeholders.
type TilesConfig struct {
	URLTemplate string `mapstructure:"url_template"`
}

type QdrantConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type EmbeddingConfig struct {
	OllamaURL   string `mapstructure:"ollama_url"`
	TextModel   string `mapstructure:"text_model"`
	VisionModel string `mapstructure:"vision_model"`
	Dimensions  int    `mapstructure:"dimensions"`
}

type DetectionConfig struct {
	RuntimeURL string `mapstructure:"runtime_url"`
	ModelPath  string `mapstructure:"model_path"`
	InputSize  int    `mapstructure:"input_size"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "tilescout")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "tilescout")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("tiles.url_template", "https://tiles.maps.eox.at/wmts/1.0.0/s2cloudless-2020_3857/default/g/{z}/{y}/{x}.jpg")
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("embedding.ollama_url", "http://localhost:11434")
	v.SetDefault("embedding.text_model", "nomic-embed-text")
	v.SetDefault("embedding.vision_model", "llava")
	v.SetDefault("embedding.dimensions", 768)
	v.SetDefault("detection.runtime_url", "http://localhost:9400")
	v.SetDefault("detection.model_path", "models/aerial-yolo-v8n.onnx")
	v.SetDefault("detection.input_size", 640)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: TILESCOUT_QDRANT_HOST → qdrant.host
	v.SetEnvPrefix("TILESCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Tiles.URLTemplate == "" {
		errs = append(errs, "tiles.url_template is required")
	} else {
		for _, ph := range []string{"{z}", "{y}", "{x}"} {
			if !strings.Contains(c.Tiles.URLTemplate, ph) {
				errs = append(errs, fmt.Sprintf("tiles.url_template must contain %s", ph))
			}
		}
	}
	if c.Qdrant.Host == "" {
		errs = append(errs, "qdrant.host is required")
	}
	if c.Qdrant.Port <= 0 || c.Qdrant.Port > 65535 {
		errs = append(errs, fmt.Sprintf("qdrant.port must be 1-65535, got %d", c.Qdrant.Port))
	}
	if c.Embedding.OllamaURL == "" {
		errs = append(errs, "embedding.ollama_url is required")
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, "embedding.dimensions must be positive")
	}
	if c.Detection.RuntimeURL == "" {
		errs = append(errs, "detection.runtime_url is required")
	}
	if c.Detection.InputSize <= 0 {
		errs = append(errs, "detection.input_size must be positive")
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
