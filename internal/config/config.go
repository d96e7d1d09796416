package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" validate:"omitempty,numeric"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret" validate:"required,min=16"`
		Issuer    string `yaml:"issuer"`
		TokenTTL  string `yaml:"token_ttl"`
	} `yaml:"auth"`
	Cache struct {
		TTL string `yaml:"ttl"`
	} `yaml:"cache"`
	Quiz struct {
		Duration    string `yaml:"duration"`
		AutoAdvance string `yaml:"auto_advance"`
		RandomSizes []int  `yaml:"random_sizes" validate:"dive,gt=0"`
		SessionTTL  string `yaml:"session_ttl"`
	} `yaml:"quiz"`
	Admission struct {
		CookieName   string `yaml:"cookie_name"`
		CookieSecure bool   `yaml:"cookie_secure"`
	} `yaml:"admission"`
	// Bootstrap creates the first admin account on start if it does not exist.
	Bootstrap struct {
		AdminEmail    string `yaml:"admin_email" validate:"omitempty,email"`
		AdminPassword string `yaml:"admin_password" validate:"required_with=AdminEmail,omitempty,min=6"`
	} `yaml:"bootstrap"`
}

// Load reads YAML config from path and validates it.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints and reports every failing field.
func Validate(cfg Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, fmt.Sprintf("field '%s' failed '%s' (value: '%v')", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config:\n- %s", strings.Join(messages, "\n- "))
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
