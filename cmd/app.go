package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"goclockin/attendance"
	"goclockin/config"
	"goclockin/credential"
	"goclockin/factorial"
	"goclockin/internal/notify"
	"goclockin/storage"
)

// app bundles the long-lived components every command wires together.
type app struct {
	cfg         *config.Config
	configErr   error
	logger      *slog.Logger
	store       *storage.SQLiteStore
	credentials *credential.Store
	gateway     *factorial.HTTPClient
	service     *attendance.Service
	closers     []io.Closer
}

// loadConfig returns the active configuration. An invalid configuration is
// reported as configErr alongside the defaults so the caller can keep
// serving manual actions.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadAndValidate()
	if err == nil {
		return cfg, nil
	}
	fallback := config.Default()
	fallback.Account.Email = strings.TrimSpace(viper.GetString(config.KeyAccountEmail))
	return fallback, err
}

func newLogger(level, path string) (*slog.Logger, io.Closer, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}

	var out io.Writer = os.Stderr
	var closer io.Closer
	if path = strings.TrimSpace(path); path != "" {
		path = config.ExpandPath(path)
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = file
		closer = file
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})), closer, nil
}

func openApp() (*app, error) {
	cfg, configErr := loadConfig()

	logger, logCloser, err := newLogger(logLevel, logFile)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, configErr: configErr, logger: logger}
	if logCloser != nil {
		a.closers = append(a.closers, logCloser)
	}
	if configErr != nil {
		logger.Warn("configuration invalid, automatic clocking disabled", "error", configErr)
	}

	store, err := storage.OpenSQLite(cfg.Storage.DB)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store)

	credentials, err := credential.NewStore(cfg.Credentials.Dir)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.credentials = credentials

	gateway, err := factorial.NewClient(factorial.ClientConfig{
		BaseURL: cfg.Factorial.URL,
		Timeout: cfg.Factorial.Timeout,
		Logger:  logger.With("component", "factorial"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.gateway = gateway

	service, err := attendance.NewService(attendance.Options{
		Gateway:       gateway,
		Credentials:   credentials,
		Store:         store,
		Notifier:      notify.NewDesktop(cfg.Notifications.Enabled, logger.With("component", "notify")),
		Logger:        logger.With("component", "attendance"),
		Email:         cfg.Account.Email,
		WorkdayHours:  cfg.Workday.Hours,
		ConfigErr:     configErr,
		AuthStatePath: factorial.DefaultAuthStatePath(cfg.Credentials.Dir),
		SaveEmail:     saveAccountEmail,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.service = service
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
	a.closers = nil
}

// saveAccountEmail writes account.email to the active config file, creating
// the file from the template when none exists.
func saveAccountEmail(email string) error {
	return setConfigValue(config.KeyAccountEmail, strings.TrimSpace(email))
}

func setConfigValue(key, value string) error {
	if !config.IsKnownKey(key) {
		return fmt.Errorf("%w: unknown key %q (known: %s)", config.ErrConfiguration, key, strings.Join(config.Keys(), ", "))
	}
	path, err := configFilePath(cfgFile, viper.ConfigFileUsed())
	if err != nil {
		return err
	}
	if _, err := ensureConfigFile(path); err != nil {
		return err
	}

	err = rewriteConfigFile(path, func() error {
		local := viper.New()
		local.SetConfigFile(path)
		local.SetConfigType("yaml")
		if err := local.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		local.Set(key, value)
		if err := local.WriteConfigAs(path); err != nil {
			return fmt.Errorf("write config %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	viper.Set(key, value)
	return nil
}
