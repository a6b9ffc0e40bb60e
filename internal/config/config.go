// Package config provides YAML-based configuration loading for docchat.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "docchat.yaml"

// Config is the top-level docchat configuration, loaded from docchat.yaml.
type Config struct {
	Backend    BackendConfig    `yaml:"backend"`
	Session    SessionConfig    `yaml:"session"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
	Health     HealthConfig     `yaml:"health"`
}

// BackendConfig locates the question-answering service.
type BackendConfig struct {
	URL     string        `yaml:"url" validate:"required,http_url"`
	UserID  string        `yaml:"user_id"`
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// SessionConfig overrides controller display strings and policies.
type SessionConfig struct {
	Greeting          string `yaml:"greeting"`
	ResetMessage      string `yaml:"reset_message"`
	NoAnswerMessage   string `yaml:"no_answer_message"`
	RollbackOnFailure bool   `yaml:"rollback_on_failure"`
	MaxDocumentBytes  int64  `yaml:"max_document_bytes" validate:"gte=0"`
}

// TranscriptConfig selects where session transcripts are stored.
type TranscriptConfig struct {
	Driver string      `yaml:"driver" validate:"oneof=sqlite mysql none"`
	Path   string      `yaml:"path" validate:"required_if=Driver sqlite"`
	MySQL  MySQLConfig `yaml:"mysql"`
	// Timeout bounds each transcript write. Zero uses the session default.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// MySQLConfig holds connection settings for a MySQL or Dolt server.
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"gte=0,lte=65535"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// LogConfig controls the rotating log file.
type LogConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// ServerConfig holds web API settings.
type ServerConfig struct {
	Port int `yaml:"port" validate:"gt=0,lte=65535"`
}

// HealthConfig schedules backend probes.
type HealthConfig struct {
	Schedule string `yaml:"schedule"`
}

// Load reads a YAML config file from path and returns a validated Config.
// A .env file next to the working directory is loaded first, and DOCCHAT_*
// environment variables override values from the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return parseWithEnv(data)
}

// LoadOptional behaves like Load but falls back to defaults when path does
// not exist.
func LoadOptional(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return parseWithEnv(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return parseWithEnv(data)
}

func parseWithEnv(data []byte) (*Config, error) {
	// A missing .env is normal.
	_ = godotenv.Load()
	cfg, err := unmarshal(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg.finish()
}

// Parse unmarshals YAML bytes into a validated Config. The environment is
// not consulted.
func Parse(data []byte) (*Config, error) {
	cfg, err := unmarshal(data)
	if err != nil {
		return nil, err
	}
	return cfg.finish()
}

func unmarshal(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return &cfg, nil
}

func (c *Config) finish() (*Config, error) {
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Backend.URL == "" {
		c.Backend.URL = "http://127.0.0.1:8000"
	}
	c.Backend.URL = strings.TrimRight(c.Backend.URL, "/")
	if c.Transcript.Driver == "" {
		c.Transcript.Driver = "sqlite"
	}
	if c.Transcript.Path == "" {
		c.Transcript.Path = "docchat.db"
	}
	if c.Transcript.MySQL.Host == "" {
		c.Transcript.MySQL.Host = "127.0.0.1"
	}
	if c.Transcript.MySQL.Port == 0 {
		c.Transcript.MySQL.Port = 3306
	}
	if c.Transcript.MySQL.Database == "" {
		c.Transcript.MySQL.Database = "docchat"
	}
	if c.Transcript.MySQL.User == "" {
		c.Transcript.MySQL.User = "root"
	}
	if c.Log.File == "" {
		c.Log.File = "docchat.log"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Health.Schedule == "" {
		c.Health.Schedule = "@every 30s"
	}
}

// applyEnv overrides file values with DOCCHAT_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("DOCCHAT_BACKEND_URL", &c.Backend.URL)
	str("DOCCHAT_USER_ID", &c.Backend.UserID)
	str("DOCCHAT_TRANSCRIPT_DRIVER", &c.Transcript.Driver)
	str("DOCCHAT_TRANSCRIPT_PATH", &c.Transcript.Path)
	str("DOCCHAT_MYSQL_HOST", &c.Transcript.MySQL.Host)
	str("DOCCHAT_MYSQL_DATABASE", &c.Transcript.MySQL.Database)
	str("DOCCHAT_MYSQL_USER", &c.Transcript.MySQL.User)
	str("DOCCHAT_MYSQL_PASSWORD", &c.Transcript.MySQL.Password)
	str("DOCCHAT_LOG_LEVEL", &c.Log.Level)
	str("DOCCHAT_LOG_FILE", &c.Log.File)

	var errs []string
	if v, ok := lookup("DOCCHAT_BACKEND_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("DOCCHAT_BACKEND_TIMEOUT: %v", err))
		} else {
			c.Backend.Timeout = d
		}
	}
	for key, dst := range map[string]*int{
		"DOCCHAT_SERVER_PORT": &c.Server.Port,
		"DOCCHAT_MYSQL_PORT":  &c.Transcript.MySQL.Port,
	} {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %q is not a number", key, v))
			continue
		}
		*dst = n
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validate checks that all fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: validation failed: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, describe(fe))
		}
	}
	if _, err := cron.ParseStandard(c.Health.Schedule); err != nil {
		errs = append(errs, fmt.Sprintf("health.schedule %q is invalid: %v", c.Health.Schedule, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// describe renders one validator failure using the yaml path of the field.
func describe(fe validator.FieldError) string {
	path := fe.Namespace()
	if i := strings.IndexByte(path, '.'); i >= 0 {
		path = path[i+1:]
	}
	switch fe.Tag() {
	case "required", "required_if":
		return path + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", path, fe.Param(), fmt.Sprint(fe.Value()))
	case "http_url":
		return fmt.Sprintf("%s must be an http or https URL, got %q", path, fmt.Sprint(fe.Value()))
	default:
		return fmt.Sprintf("%s failed %s=%s (got %v)", path, fe.Tag(), fe.Param(), fe.Value())
	}
}
