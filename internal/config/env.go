package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvConfig       = "DEVENV_UTILITIES_CONFIG"
	EnvRedirectURI  = "DEVELOPMENT_ENVIRONMENT_UTILITIES_MICROSOFT_LIVE_CONNECT_REDIRECT_URI"
	EnvClientID     = "DEVELOPMENT_ENVIRONMENT_UTILITIES_MICROSOFT_LIVE_CONNECT_CLIENT_ID"
	EnvClientSecret = "DEVELOPMENT_ENVIRONMENT_UTILITIES_MICROSOFT_LIVE_CONNECT_CLIENT_SECRET" //nolint:gosec // G101: variable name, not a credential
	EnvSSLPEMFile   = "DEVELOPMENT_ENVIRONMENT_UTILITIES_SSL_PEM_FILENAME"
)

// ErrMissingEnv is returned by Credentials.Check when required variables are unset.
var ErrMissingEnv = errors.New("config: required environment variables are not defined")

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	SSLPEMFile   string
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		RedirectURI:  os.Getenv(EnvRedirectURI),
		ClientID:     os.Getenv(EnvClientID),
		ClientSecret: os.Getenv(EnvClientSecret),
		SSLPEMFile:   os.Getenv(EnvSSLPEMFile),
	}
}

// LoadDotEnv loads KEY=VALUE pairs from the given .env files into the process
// environment. Variables that are already set win over file values. Missing
// files are skipped so a default ".env" lookup never fails.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config: loading env file %s: %w", p, err)
		}
	}

	return nil
}

// Credentials are the OAuth application settings the archiver needs.
type Credentials struct {
	RedirectURI  string
	ClientID     string
	ClientSecret string
	SSLPEMFile   string
}

// CredentialsFromEnv extracts the credential fields from env overrides.
// A client secret ending in "=" is treated as base64 and decoded.
func CredentialsFromEnv(env EnvOverrides) (Credentials, error) {
	secret := env.ClientSecret
	if strings.HasSuffix(secret, "=") {
		decoded, err := base64.StdEncoding.DecodeString(secret)
		if err != nil {
			return Credentials{}, fmt.Errorf("config: decoding %s: %w", EnvClientSecret, err)
		}

		secret = string(decoded)
	}

	return Credentials{
		RedirectURI:  env.RedirectURI,
		ClientID:     env.ClientID,
		ClientSecret: secret,
		SSLPEMFile:   env.SSLPEMFile,
	}, nil
}

// Check reports every missing field in a single error wrapping ErrMissingEnv.
// The SSL PEM file is only required for https redirect URIs.
func (c Credentials) Check() error {
	var missing []string

	if c.RedirectURI == "" {
		missing = append(missing, EnvRedirectURI)
	}

	if c.ClientID == "" {
		missing = append(missing, EnvClientID)
	}

	if c.ClientSecret == "" {
		missing = append(missing, EnvClientSecret)
	}

	if strings.HasPrefix(strings.ToLower(c.RedirectURI), "https:") && c.SSLPEMFile == "" {
		missing = append(missing, EnvSSLPEMFile)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w:\n    - %s", ErrMissingEnv, strings.Join(missing, "\n    - "))
	}

	if c.SSLPEMFile != "" {
		fi, err := os.Stat(c.SSLPEMFile)
		if err != nil || fi.IsDir() {
			return fmt.Errorf("config: %q is not a recognized file name", c.SSLPEMFile)
		}
	}

	return nil
}
