package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/repostats/internal/errors"
)

// TokenSource names where a GitHub token came from.
type TokenSource string

const (
	SourceFlag     TokenSource = "flag"
	SourceEnv      TokenSource = "env"
	SourceKeychain TokenSource = "keychain"
	SourceFile     TokenSource = "credentials file"
	SourceConfig   TokenSource = "config"
	SourceNone     TokenSource = "none"
)

// Credentials holds credentials saved outside the keychain
type Credentials struct {
	GitHubToken string `yaml:"github_token"`
}

// CredentialManager handles credential retrieval with priority chain
// Priority: Flag → Environment Variables → Keychain → Credentials File → Config File
type CredentialManager struct {
	mode            DeploymentMode
	keyring         *KeyringManager
	cfg             *Config
	credentialsPath string
	in              io.Reader
	out             io.Writer
}

// NewCredentialManager creates a new credential manager
func NewCredentialManager(cfg *Config, logger logrus.FieldLogger) *CredentialManager {
	homeDir, _ := os.UserHomeDir()
	return &CredentialManager{
		mode:            DetectMode(),
		keyring:         NewKeyringManager(logger),
		cfg:             cfg,
		credentialsPath: filepath.Join(homeDir, ".repostats", "credentials.yaml"),
		in:              os.Stdin,
		out:             os.Stderr,
	}
}

// ResolveGitHubToken returns the first token found along the priority
// chain. An empty token with SourceNone means unauthenticated access.
func (cm *CredentialManager) ResolveGitHubToken(flagValue string) (string, TokenSource) {
	// 1. Command line flag
	if flagValue != "" {
		return flagValue, SourceFlag
	}

	// 2. Environment variable
	for _, envVar := range []string{"GITHUB_TOKEN", "GH_TOKEN"} {
		if token := os.Getenv(envVar); token != "" {
			return token, SourceEnv
		}
	}

	// 3. Keychain (macOS/Linux)
	if cm.keyring.IsAvailable() {
		if token, err := cm.keyring.GetGitHubToken(); err == nil && token != "" {
			return token, SourceKeychain
		}
	}

	// 4. Credentials file written when no keychain was available
	if creds, err := cm.loadCredentialsFile(); err == nil && creds.GitHubToken != "" {
		return creds.GitHubToken, SourceFile
	}

	// 5. Config file
	if cm.cfg != nil && cm.cfg.GitHub.Token != "" {
		return cm.cfg.GitHub.Token, SourceConfig
	}

	return "", SourceNone
}

// PromptGitHubToken asks for a token without echoing it.
func (cm *CredentialManager) PromptGitHubToken() (string, error) {
	if !cm.mode.AllowsInteractivePrompts() {
		return "", errors.ValidationError("cannot prompt for a token in a non-interactive session; set GITHUB_TOKEN instead")
	}

	fmt.Fprintln(cm.out, "Create a token at: https://github.com/settings/tokens (no scopes needed for public repositories)")
	fmt.Fprint(cm.out, "Enter GitHub Token: ")
	token, err := cm.readSecurely()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, errors.SeverityHigh, "failed to read token")
	}
	if token == "" {
		return "", errors.ValidationError("GitHub token cannot be empty")
	}
	return token, nil
}

// SaveGitHubToken saves the token to the keychain (preferred) or the
// credentials file (fallback). It returns where the token went.
func (cm *CredentialManager) SaveGitHubToken(token string) (TokenSource, error) {
	if cm.keyring.IsAvailable() {
		if err := cm.keyring.SetGitHubToken(token); err != nil {
			return SourceNone, errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityHigh,
				"failed to save GitHub token to keychain")
		}
		return SourceKeychain, nil
	}

	// Fallback: Save to credentials file
	if err := cm.saveCredentialsFile(Credentials{GitHubToken: token}); err != nil {
		return SourceNone, errors.FileSystemErrorf(err, "failed to write %s", cm.credentialsPath)
	}
	return SourceFile, nil
}

// DeleteGitHubToken removes the token from the keychain and the
// credentials file.
func (cm *CredentialManager) DeleteGitHubToken() error {
	if cm.keyring.IsAvailable() {
		if err := cm.keyring.DeleteGitHubToken(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityHigh,
				"failed to delete GitHub token from keychain")
		}
	}
	if err := os.Remove(cm.credentialsPath); err != nil && !os.IsNotExist(err) {
		return errors.FileSystemErrorf(err, "failed to remove %s", cm.credentialsPath)
	}
	return nil
}

// loadCredentialsFile loads credentials from the credentials file
func (cm *CredentialManager) loadCredentialsFile() (*Credentials, error) {
	data, err := os.ReadFile(cm.credentialsPath)
	if err != nil {
		return nil, err
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, err
	}

	return &creds, nil
}

// saveCredentialsFile saves credentials to the credentials file
func (cm *CredentialManager) saveCredentialsFile(creds Credentials) error {
	// Ensure directory exists
	dir := filepath.Dir(cm.credentialsPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(creds)
	if err != nil {
		return err
	}

	// Write file with restrictive permissions (user-only read/write)
	return os.WriteFile(cm.credentialsPath, data, 0600)
}

// readSecurely reads a token from stdin without echoing
func (cm *CredentialManager) readSecurely() (string, error) {
	// Try to read from terminal (supports password masking)
	if f, ok := cm.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytes, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cm.out) // New line after password input
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(bytes)), nil
	}

	// Fallback: Read from piped input
	reader := bufio.NewReader(cm.in)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Mode returns the detected execution mode
func (cm *CredentialManager) Mode() DeploymentMode {
	return cm.mode
}

// CredentialsPath returns the path to the fallback credentials file
func (cm *CredentialManager) CredentialsPath() string {
	return cm.credentialsPath
}
