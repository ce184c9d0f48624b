package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"goclockin/config"
)

func TestConfigFilePath(t *testing.T) {
	t.Run("flag wins", func(t *testing.T) {
		got, err := configFilePath("./custom.yaml", "/tmp/active.yaml")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "./custom.yaml" {
			t.Fatalf("expected flag path, got %q", got)
		}
	})

	t.Run("loaded file next", func(t *testing.T) {
		got, err := configFilePath(" ", "/tmp/active.yaml")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "/tmp/active.yaml" {
			t.Fatalf("expected loaded path, got %q", got)
		}
	})

	t.Run("home fallback", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)

		got, err := configFilePath("", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := filepath.Join(home, ".goclockin.yaml"); got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	})
}

func TestEnsureConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "goclockin.yaml")

	created, err := ensureConfigFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatalf("expected file to be created")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(string(content), "# goclockin configuration") {
		t.Fatalf("expected example template, got:\n%s", content)
	}
	if _, err := config.ValidateYAMLContent(content); err != nil {
		t.Fatalf("example template must validate: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected mode 0600, got %o", info.Mode().Perm())
	}

	if err := os.WriteFile(path, []byte("workday:\n  hours: 6\n"), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	created, err = ensureConfigFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Fatalf("did not expect an existing file to be recreated")
	}
	content, _ = os.ReadFile(path)
	if string(content) != "workday:\n  hours: 6\n" {
		t.Fatalf("existing file was modified:\n%s", content)
	}
}

func TestEditorCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		visual string
		editor string
		want   []string
	}{
		{name: "visual with args", visual: "code --wait", editor: "nano", want: []string{"code", "--wait", "/tmp/cfg.yaml"}},
		{name: "editor fallback", editor: "nano", want: []string{"nano", "/tmp/cfg.yaml"}},
		{name: "vi default", visual: "  ", want: []string{"vi", "/tmp/cfg.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := editorCommand(tt.visual, tt.editor, "/tmp/cfg.yaml")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.Join(cmd.Args, " ") != strings.Join(tt.want, " ") {
				t.Fatalf("unexpected args: %#v", cmd.Args)
			}
		})
	}
}

func TestRewriteConfigFileRestoresInvalidContent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "goclockin.yaml")
	if _, err := ensureConfigFile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before, _ := os.ReadFile(path)

	err := rewriteConfigFile(path, func() error {
		return os.WriteFile(path, []byte("workday:\n  hours: 40\n"), 0o600)
	})
	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	after, _ := os.ReadFile(path)
	if string(after) != string(before) {
		t.Fatalf("expected previous content to be restored, got:\n%s", after)
	}
}

func TestRewriteConfigFileKeepsValidContent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "goclockin.yaml")
	if _, err := ensureConfigFile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := rewriteConfigFile(path, func() error {
		return os.WriteFile(path, []byte("workday:\n  hours: 6\n"), 0o600)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after, _ := os.ReadFile(path)
	if string(after) != "workday:\n  hours: 6\n" {
		t.Fatalf("unexpected content:\n%s", after)
	}
}

func TestRewriteConfigFilePropagatesChangeError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "goclockin.yaml")
	if _, err := ensureConfigFile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	boom := errors.New("editor crashed")
	if err := rewriteConfigFile(path, func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected change error, got %v", err)
	}
}
