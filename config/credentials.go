package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mcgillij/gitlog-summary/logger"
)

const (
	// KeyringService is the service name in the OS keychain
	KeyringService = "gitlog-summary"
	// KeyringGitHubTokenItem is the keychain entry holding the GitHub token
	KeyringGitHubTokenItem = "github-token"
)

// Token sources
const (
	SourceEnv     = "env"
	SourceKeyring = "keychain"
	SourceFile    = "credentials file"
	SourceNone    = "none"
)

// Credentials is the layout of the plaintext credentials file
type Credentials struct {
	GitHubToken string `yaml:"github_token"`
}

// CredentialStore looks up the GitHub token.
// Priority: GITHUB_TOKEN / GH_TOKEN → OS keychain → credentials file.
type CredentialStore struct {
	path string
}

// NewCredentialStore creates a store reading the credentials file at path,
// or the default location when path is empty.
func NewCredentialStore(path string) *CredentialStore {
	if path == "" {
		path = filepath.Join(Dir(), "credentials.yaml")
	}
	return &CredentialStore{path: path}
}

// GitHubToken returns the token and where it came from. A missing token is
// not an error: the API can be used anonymously at a lower rate limit.
func (s *CredentialStore) GitHubToken() (string, string, error) {
	for _, name := range []string{"GITHUB_TOKEN", "GH_TOKEN"} {
		if token := os.Getenv(name); token != "" {
			return token, SourceEnv, nil
		}
	}

	token, err := keyring.Get(KeyringService, KeyringGitHubTokenItem)
	switch {
	case err == nil && token != "":
		return token, SourceKeyring, nil
	case err != nil && !errors.Is(err, keyring.ErrNotFound):
		// headless systems have no keychain; fall through to the file
		logger.Debug("keychain unavailable", zap.Error(err))
	}

	creds, err := s.loadFile()
	if err != nil {
		return "", SourceNone, err
	}
	if creds.GitHubToken != "" {
		return creds.GitHubToken, SourceFile, nil
	}
	return "", SourceNone, nil
}

// SaveGitHubToken stores the token in the OS keychain
func (s *CredentialStore) SaveGitHubToken(token string) error {
	if token == "" {
		return fmt.Errorf("github token cannot be empty")
	}
	if err := keyring.Set(KeyringService, KeyringGitHubTokenItem, token); err != nil {
		return fmt.Errorf("failed to save to OS keychain: %w", err)
	}
	logger.Info("GitHub token saved to keychain", zap.String("service", KeyringService))
	return nil
}

// DeleteGitHubToken removes the token from the OS keychain
func (s *CredentialStore) DeleteGitHubToken() error {
	err := keyring.Delete(KeyringService, KeyringGitHubTokenItem)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete from OS keychain: %w", err)
	}
	return nil
}

func (s *CredentialStore) loadFile() (Credentials, error) {
	var creds Credentials
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return creds, nil
	}
	if err != nil {
		return creds, fmt.Errorf("failed to read credentials file: %w", err)
	}
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return creds, fmt.Errorf("failed to parse credentials file %s: %w", s.path, err)
	}
	return creds, nil
}
