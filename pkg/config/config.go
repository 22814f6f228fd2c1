package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

type ServerConfig struct {
	Port            int `mapstructure:"port"`
	ShutdownTimeout int `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig backs the Execution Repository. DSN accepts either a
// Postgres connection string or a sqlite file path depending on Driver.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type EngineConfig struct {
	BackendBaseURL string `mapstructure:"backend_base_url"`
	StatusSecret   string `mapstructure:"status_secret"`
	WorkerCount    int    `mapstructure:"worker_count"`
	MaxRetries     int    `mapstructure:"max_retries"`
	SMTPPort       int    `mapstructure:"smtp_port"`
	Production     bool   `mapstructure:"production"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	AddCaller  bool   `mapstructure:"add_caller"`
	Stacktrace bool   `mapstructure:"stacktrace"`
}

// Load reads layered configuration for the given binary ("engine-worker"
// or "engine-ingest"): defaults, then an optional YAML file under ./configs, then
// ENGINE_-prefixed environment variables, which win.
func Load(serviceName string) (*Config, error) {
	viper.SetConfigName(serviceName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/engine")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetEnvPrefix("ENGINE")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideFromEnv(&cfg)

	if cfg.Engine.Production && cfg.Engine.StatusSecret == "" {
		return nil, fmt.Errorf("ENGINE_STATUS_SECRET is required in production")
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8081)
	viper.SetDefault("server.shutdown_timeout", 30)

	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "engine.db")

	viper.SetDefault("redis.url", "redis://localhost:6379")

	viper.SetDefault("kafka.brokers", []string{})
	viper.SetDefault("kafka.topic", "engine.execution.events")

	viper.SetDefault("engine.backend_base_url", "http://localhost:8000")
	viper.SetDefault("engine.status_secret", "")
	viper.SetDefault("engine.worker_count", 4)
	viper.SetDefault("engine.max_retries", 3)
	viper.SetDefault("engine.smtp_port", 465)
	viper.SetDefault("engine.production", false)

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "json")
	viper.SetDefault("logger.output", "stdout")
	viper.SetDefault("logger.add_caller", true)
	viper.SetDefault("logger.stacktrace", false)
}

func overrideFromEnv(cfg *Config) {
	if url := viper.GetString("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if dsn := viper.GetString("DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if baseURL := viper.GetString("BACKEND_BASE_URL"); baseURL != "" {
		cfg.Engine.BackendBaseURL = baseURL
	}
	if secret := viper.GetString("STATUS_SECRET"); secret != "" {
		cfg.Engine.StatusSecret = secret
	}
	if brokers := viper.GetString("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if port := viper.GetInt("SERVER_PORT"); port != 0 {
		cfg.Server.Port = port
	}
	if workers := viper.GetInt("WORKER_COUNT"); workers != 0 {
		cfg.Engine.WorkerCount = workers
	}
	if smtpPort := viper.GetInt("SMTP_PORT"); smtpPort != 0 {
		cfg.Engine.SMTPPort = smtpPort
	}
}
