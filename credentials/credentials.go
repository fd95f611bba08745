// Package credentials loads API keys from standard locations and answers
// availability checks for the router. Availability is never cached by
// callers; keys may be added or removed at runtime.
package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// ErrInsecurePermissions is returned when the credentials file has overly
// permissive permissions.
var ErrInsecurePermissions = fmt.Errorf("credentials file has insecure permissions")

// Credentials holds API keys loaded from credentials.toml.
// A generic map supports any provider without hardcoding.
type Credentials struct {
	mu        sync.RWMutex
	providers map[string]*ProviderCreds
}

// ProviderCreds holds credentials for a single provider.
type ProviderCreds struct {
	APIKey string `toml:"api_key"`
}

// StandardPaths returns the standard credential file locations in priority order.
func StandardPaths() []string {
	paths := []string{"credentials.toml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "taskloop", "credentials.toml"),
			filepath.Join(home, ".taskloop", "credentials.toml"),
		)
	}

	return paths
}

// Load loads credentials from the first available standard location.
// A missing file is not an error; env vars still serve lookups.
func Load() (*Credentials, string, error) {
	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err == nil {
			creds, err := LoadFile(path)
			if err != nil {
				return nil, path, err
			}
			return creds, path, nil
		}
	}
	return New(), "", nil
}

// New returns an empty credential set backed only by environment variables.
func New() *Credentials {
	return &Credentials{providers: make(map[string]*ProviderCreds)}
}

// LoadFile loads credentials from a specific file.
// Returns ErrInsecurePermissions if the file is readable by group or others.
func LoadFile(path string) (*Credentials, error) {
	// Check file permissions (Unix only)
	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		mode := info.Mode().Perm()
		// Credentials must be 0400 (owner read-only)
		if mode != 0400 {
			return nil, fmt.Errorf("%w: %s has mode %04o (must be 0400)",
				ErrInsecurePermissions, path, mode)
		}
	}

	// Decode into a generic map to accept any provider section
	var rawData map[string]interface{}
	if _, err := toml.DecodeFile(path, &rawData); err != nil {
		return nil, err
	}

	creds := New()
	for key, value := range rawData {
		section, ok := value.(map[string]interface{})
		if !ok {
			continue
		}

		apiKey, _ := section["api_key"].(string)
		if apiKey == "" {
			continue
		}
		creds.providers[normalize(key)] = &ProviderCreds{APIKey: apiKey}
	}

	return creds, nil
}

// Set adds or replaces a provider's key at runtime.
func (c *Credentials) Set(provider, apiKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[normalize(provider)] = &ProviderCreds{APIKey: apiKey}
}

// Remove deletes a provider's key at runtime. Environment variables are
// unaffected.
func (c *Credentials) Remove(provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.providers, normalize(provider))
}

// APIKey returns the API key for a provider.
// Priority: [provider] file section > environment variable.
func (c *Credentials) APIKey(provider string) string {
	if c != nil {
		c.mu.RLock()
		creds, ok := c.providers[normalize(provider)]
		c.mu.RUnlock()
		if ok && creds.APIKey != "" {
			return creds.APIKey
		}
	}
	return os.Getenv(envVarForProvider(provider))
}

// HasCredential reports whether a usable key exists for the provider.
// Evaluated fresh on every call; callers must not cache the answer.
func (c *Credentials) HasCredential(provider string) bool {
	return c.APIKey(provider) != ""
}

// normalize lower-cases a provider name and strips dashes so "open-router"
// and "openrouter" share a section.
func normalize(provider string) string {
	return strings.ToLower(strings.ReplaceAll(provider, "-", ""))
}

// envVarForProvider returns the environment variable name for a provider.
func envVarForProvider(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "OPENAI_API_KEY"
	case "openrouter":
		return "OPENROUTER_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	case "mistral":
		return "MISTRAL_API_KEY"
	default:
		// Generic: PROVIDER_API_KEY
		return strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"
	}
}

// Static is a fixed provider->key map. Useful in tests.
type Static map[string]string

// APIKey returns the key for a provider, or empty.
func (s Static) APIKey(provider string) string {
	return s[strings.ToLower(provider)]
}

// HasCredential reports whether a key exists for the provider.
func (s Static) HasCredential(provider string) bool {
	return s.APIKey(provider) != ""
}
