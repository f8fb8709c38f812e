package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Environment   string `mapstructure:"environment"`
	DevModeBypass bool   `mapstructure:"dev_mode_bypass"`

	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
	DB struct {
		Enable   bool   `mapstructure:"enable"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	Auth struct {
		OktaDomain   string `mapstructure:"okta_domain"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
		RedirectURL  string `mapstructure:"redirect_url"`
	} `mapstructure:"auth"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Templates struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"templates"`
	Storage struct {
		BaseURL         string        `mapstructure:"base_url"`
		DeploymentMode  string        `mapstructure:"deployment_mode"`
		DevToken        string        `mapstructure:"dev_token"`
		PartConcurrency int           `mapstructure:"part_concurrency"`
		Timeout         time.Duration `mapstructure:"timeout"`
	} `mapstructure:"storage"`
	Embedding struct {
		URL     string        `mapstructure:"url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"embedding"`
	Materializer struct {
		PartSize         int `mapstructure:"part_size"`
		StorageThreshold int `mapstructure:"storage_threshold"`
	} `mapstructure:"materializer"`
}

// IsDev reports whether the service runs in the DEV environment.
func (c *Config) IsDev() bool {
	return strings.EqualFold(c.Environment, "dev")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")
	v.SetDefault("dev_mode_bypass", false)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("db.enable", false)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.user", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "puppyone")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("templates.dir", "./templates")
	v.SetDefault("storage.base_url", "http://localhost:9090/api/v1/storage")
	v.SetDefault("storage.deployment_mode", "local")
	v.SetDefault("storage.dev_token", "local-dev-token")
	v.SetDefault("storage.part_concurrency", 4)
	v.SetDefault("storage.timeout", time.Duration(0))
	v.SetDefault("auth.okta_domain", "")
	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.client_secret", "")
	v.SetDefault("auth.redirect_url", "")
	v.SetDefault("embedding.url", "")
	v.SetDefault("embedding.timeout", time.Duration(0))
	v.SetDefault("materializer.part_size", 1024*1024)
	v.SetDefault("materializer.storage_threshold", 1024*1024)
}

// LoadConfig loads the configuration from a file and the environment. If
// envFile is set it is loaded into the process environment first. A missing
// config file is not an error; defaults and the environment still apply.
func LoadConfig(envFile, configFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// normalize OKTA issuer url (strip trailing slash if any)
	config.Auth.OktaDomain = normalizeOktaIssuer(config.Auth.OktaDomain)
	config.Storage.BaseURL = strings.TrimRight(config.Storage.BaseURL, "/")
	config.Embedding.URL = strings.TrimRight(config.Embedding.URL, "/")

	return &config, nil
}

// normalizeOktaIssuer ensures the provided Okta issuer string is in a
// predictable form. It removes any trailing slash and leaves the scheme and
// path intact.
func normalizeOktaIssuer(input string) string {
	return strings.TrimRight(strings.TrimSpace(input), "/")
}
