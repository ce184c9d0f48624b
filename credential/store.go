// Package credential keeps account passwords encrypted at rest with age.
//
// The store owns one X25519 identity file, generated on first use, and one
// encrypted secret per account email. Nothing is ever written in plaintext.
package credential

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

const (
	identityFile = "identity.txt"
	secretsDir   = "credentials"
	secretSuffix = ".age"
)

// ErrNotFound is returned when no secret is stored for an account.
var ErrNotFound = errors.New("credential not found")

type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("credential directory is required")
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Save encrypts password for email, replacing any previous secret.
func (s *Store) Save(email, password string) error {
	path, err := s.secretPath(email)
	if err != nil {
		return err
	}
	if password == "" {
		return errors.New("password is required")
	}

	identity, err := s.identity(true)
	if err != nil {
		return err
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, identity.Recipient())
	if err != nil {
		return fmt.Errorf("create age encryptor: %w", err)
	}
	if _, err := io.WriteString(writer, password); err != nil {
		return fmt.Errorf("write secret: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize age encryption: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}
	if err := writeFileAtomic(path, ciphertext.Bytes()); err != nil {
		return fmt.Errorf("store secret: %w", err)
	}
	return nil
}

// Load returns the stored password for email.
func (s *Store) Load(email string) (string, error) {
	path, err := s.secretPath(email)
	if err != nil {
		return "", err
	}
	ciphertext, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w for %s", ErrNotFound, email)
	}
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}

	identity, err := s.identity(false)
	if err != nil {
		return "", err
	}
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return "", fmt.Errorf("decrypt secret: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read decrypted secret: %w", err)
	}
	return string(plaintext), nil
}

// Has reports whether a secret exists for email.
func (s *Store) Has(email string) bool {
	path, err := s.secretPath(email)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Delete removes the secret for email. Missing secrets are not an error.
func (s *Store) Delete(email string) error {
	path, err := s.secretPath(email)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete secret: %w", err)
	}
	return nil
}

func (s *Store) identity(create bool) (*age.X25519Identity, error) {
	path := filepath.Join(s.dir, identityFile)
	content, err := os.ReadFile(path)
	if err == nil {
		identity, err := age.ParseX25519Identity(strings.TrimSpace(string(content)))
		if err != nil {
			return nil, fmt.Errorf("parse identity %s: %w", path, err)
		}
		return identity, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read identity: %w", err)
	}
	if !create {
		return nil, fmt.Errorf("%w: identity file %s is missing", ErrNotFound, path)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generate age identity: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, fmt.Errorf("create credential directory: %w", err)
	}
	if err := writeFileAtomic(path, []byte(identity.String()+"\n")); err != nil {
		return nil, fmt.Errorf("store identity: %w", err)
	}
	return identity, nil
}

func (s *Store) secretPath(email string) (string, error) {
	name := fileName(email)
	if name == "" {
		return "", errors.New("account email is required")
	}
	return filepath.Join(s.dir, secretsDir, name+secretSuffix), nil
}

func fileName(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	var b strings.Builder
	for _, r := range email {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '@', r == '.', r == '-', r == '_', r == '+':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), ".")
}

func writeFileAtomic(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
