package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	KeyFactorialURL        = "factorial.url"
	KeyFactorialTimeout    = "factorial.timeout"
	KeyAccountEmail        = "account.email"
	KeyWorkdayHours        = "workday.hours"
	KeyEventsLoginDelay    = "events.login_delay"
	KeyEventsHeartbeat     = "events.heartbeat"
	KeyEventsSleepGap      = "events.sleep_gap"
	KeyEventsClockOutOnEnd = "events.clock_out_on_shutdown"
	KeyRetryAttempts       = "dispatcher.retry_attempts"
	KeyRetryDelay          = "dispatcher.retry_delay"
	KeyStatusRefresh       = "status.refresh_interval"
	KeyWebEnabled          = "web.enabled"
	KeyWebListen           = "web.listen"
	KeyNotificationsOn     = "notifications.enabled"
	KeyStorageDB           = "storage.db"
	KeyCredentialsDir      = "credentials.dir"

	DefaultWorkdayHours = 8.0
	EnvPrefix           = "GOCLOCKIN"
	appDirName          = ".goclockin"
)

// ErrConfiguration marks missing or invalid settings.
var ErrConfiguration = errors.New("invalid configuration")

type Config struct {
	Factorial     FactorialConfig     `mapstructure:"factorial" validate:"required"`
	Account       AccountConfig       `mapstructure:"account"`
	Workday       WorkdayConfig       `mapstructure:"workday"`
	Events        EventsConfig        `mapstructure:"events"`
	Dispatcher    DispatcherConfig    `mapstructure:"dispatcher"`
	Status        StatusConfig        `mapstructure:"status"`
	Web           WebConfig           `mapstructure:"web"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Credentials   CredentialsConfig   `mapstructure:"credentials"`
}

type FactorialConfig struct {
	URL     string        `mapstructure:"url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type AccountConfig struct {
	Email string `mapstructure:"email" validate:"omitempty,email"`
}

type WorkdayConfig struct {
	Hours float64 `mapstructure:"hours" validate:"gte=1,lte=24"`
}

type EventsConfig struct {
	LoginDelay         time.Duration `mapstructure:"login_delay" validate:"gte=0"`
	Heartbeat          time.Duration `mapstructure:"heartbeat" validate:"gt=0"`
	SleepGap           time.Duration `mapstructure:"sleep_gap" validate:"gt=0"`
	ClockOutOnShutdown bool          `mapstructure:"clock_out_on_shutdown"`
}

type DispatcherConfig struct {
	RetryAttempts int           `mapstructure:"retry_attempts" validate:"gte=0,lte=10"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" validate:"gt=0"`
}

type StatusConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"gt=0"`
}

type WebConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen" validate:"required,hostname_port"`
}

type NotificationsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type StorageConfig struct {
	DB string `mapstructure:"db" validate:"required"`
}

type CredentialsConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

// Configured reports whether automatic clocking has an account to act for.
func (c *Config) Configured() bool {
	return strings.TrimSpace(c.Account.Email) != ""
}

// SetDefaults sets default values if not provided
func SetDefaults() {
	setDefaults(viper.GetViper())
}

// LoadAndValidate loads config from Viper and validates it
func LoadAndValidate() (*Config, error) {
	return loadAndValidateFromViper(viper.GetViper())
}

// Default returns the validated default configuration.
func Default() *Config {
	local := viper.New()
	setDefaults(local)
	cfg, err := loadAndValidateFromViper(local)
	if err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return cfg
}

// ValidateYAMLContent validates configuration from raw YAML content.
func ValidateYAMLContent(content []byte) (*Config, error) {
	local := viper.New()
	setDefaults(local)
	local.SetConfigType("yaml")
	if err := local.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("%w: read config content: %v", ErrConfiguration, err)
	}
	return loadAndValidateFromViper(local)
}

// Keys lists the settings accepted by `config set`.
func Keys() []string {
	keys := make([]string, 0, len(defaults()))
	for key := range defaults() {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// IsKnownKey reports whether key is a supported setting.
func IsKnownKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	_, ok := defaults()[key]
	return ok
}

// AppDir is the per-user directory holding the database and credentials.
func AppDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return appDirName
	}
	return filepath.Join(home, appDirName)
}

// ExpandPath resolves a leading "~/" against the user's home directory.
func ExpandPath(path string) string {
	path = strings.TrimSpace(path)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// ExampleYAML returns the default configuration template.
func ExampleYAML() string {
	return `# goclockin configuration
factorial:
  url: "https://api.factorialhr.com"
  timeout: 30s

account:
  # Factorial login; the password is stored encrypted via "goclockin auth login".
  email: ""

workday:
  hours: 8

events:
  login_delay: 3s
  heartbeat: 15s
  sleep_gap: 2m
  clock_out_on_shutdown: true

dispatcher:
  retry_attempts: 3
  retry_delay: 1m

status:
  refresh_interval: 60s

web:
  enabled: true
  listen: "127.0.0.1:8765"

notifications:
  enabled: true

storage:
  db: "~/.goclockin/goclockin.db"

credentials:
  dir: "~/.goclockin"
`
}

func loadAndValidateFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: error unmarshaling config: %v", ErrConfiguration, err)
	}
	cfg.Account.Email = strings.TrimSpace(cfg.Account.Email)
	cfg.Storage.DB = ExpandPath(cfg.Storage.DB)
	cfg.Credentials.Dir = ExpandPath(cfg.Credentials.Dir)

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: validation failed: %v", ErrConfiguration, err)
	}
	if cfg.Events.SleepGap <= cfg.Events.Heartbeat {
		return nil, fmt.Errorf(
			"%w: validation failed: events.sleep_gap (%s) must exceed events.heartbeat (%s)",
			ErrConfiguration,
			cfg.Events.SleepGap,
			cfg.Events.Heartbeat,
		)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
}

func defaults() map[string]any {
	dir := AppDir()
	return map[string]any{
		KeyFactorialURL:        "https://api.factorialhr.com",
		KeyFactorialTimeout:    "30s",
		KeyAccountEmail:        "",
		KeyWorkdayHours:        DefaultWorkdayHours,
		KeyEventsLoginDelay:    "3s",
		KeyEventsHeartbeat:     "15s",
		KeyEventsSleepGap:      "2m",
		KeyEventsClockOutOnEnd: true,
		KeyRetryAttempts:       3,
		KeyRetryDelay:          "1m",
		KeyStatusRefresh:       "60s",
		KeyWebEnabled:          true,
		KeyWebListen:           "127.0.0.1:8765",
		KeyNotificationsOn:     true,
		KeyStorageDB:           filepath.Join(dir, "goclockin.db"),
		KeyCredentialsDir:      dir,
	}
}
