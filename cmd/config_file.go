package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"goclockin/config"
)

const configFileName = ".goclockin.yaml"

// configFilePath picks the file config commands write to: the --configFile
// flag, then the file viper loaded, then $HOME/.goclockin.yaml.
func configFilePath(flagValue, loaded string) (string, error) {
	for _, candidate := range []string{flagValue, loaded} {
		if strings.TrimSpace(candidate) != "" {
			return candidate, nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, configFileName), nil
}

// ensureConfigFile writes the example template to path unless a file is
// already there. It reports whether the file was created.
func ensureConfigFile(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("check config file %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(config.ExampleYAML()), 0o600); err != nil {
		return false, fmt.Errorf("write example config %s: %w", path, err)
	}
	return true, nil
}

// editorCommand builds the command opening path in $VISUAL, $EDITOR or vi.
// Editor values may carry arguments ("code --wait").
func editorCommand(visual, editor, path string) (*exec.Cmd, error) {
	value := "vi"
	for _, candidate := range []string{visual, editor} {
		if strings.TrimSpace(candidate) != "" {
			value = candidate
			break
		}
	}
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return nil, errors.New("editor command is empty")
	}
	return exec.Command(fields[0], append(fields[1:], path)...), nil
}

// rewriteConfigFile applies change to the file at path and validates the
// result. Invalid content is replaced by what the file held before.
func rewriteConfigFile(path string, change func() error) error {
	previous, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := change(); err != nil {
		return err
	}

	updated, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if _, err := config.ValidateYAMLContent(updated); err != nil {
		if restoreErr := os.WriteFile(path, previous, 0o600); restoreErr != nil {
			return errors.Join(err, fmt.Errorf("restore %s: %w", path, restoreErr))
		}
		return fmt.Errorf("config validation failed, %s restored: %w", path, err)
	}
	return nil
}
