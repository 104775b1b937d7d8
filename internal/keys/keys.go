// Package keys stores the generation service credential on disk.
package keys

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
)

// DefaultProvider is the key name used for the Gemini credential.
const DefaultProvider = "gemini"

// DefaultEnvVars are checked in order when no key is given or stored.
var DefaultEnvVars = []string{"GEMINI_API_KEY", "API_KEY"}

var (
	ErrKeyNotFound = errors.New("no key stored")
	ErrNoAPIKey    = errors.New("API key required")
)

// Store keeps keys.json in the user's config directory.
type Store struct {
	configDir string
}

type KeyEntry struct {
	Key string `json:"key"`
}

type Keys map[string]KeyEntry

func NewStore() (*Store, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return &Store{configDir: dir}, nil
}

// NewStoreAt returns a store rooted at dir.
func NewStoreAt(dir string) *Store {
	return &Store{configDir: dir}
}

// ConfigDir returns the platform config directory for chronosnap.
// CHRONOSNAP_CONFIG_DIR overrides it.
func ConfigDir() (string, error) {
	if dir := os.Getenv("CHRONOSNAP_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "chronosnap"), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "chronosnap"), nil
	default:
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configHome = filepath.Join(home, ".config")
		}
		return filepath.Join(configHome, "chronosnap"), nil
	}
}

func (s *Store) Dir() string {
	return s.configDir
}

func (s *Store) Path() string {
	return filepath.Join(s.configDir, "keys.json")
}

func (s *Store) load() (Keys, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(Keys), nil
		}
		return nil, err
	}

	var keys Keys
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("failed to parse keys.json: %w", err)
	}
	if keys == nil {
		keys = make(Keys)
	}
	return keys, nil
}

func (s *Store) save(keys Keys) error {
	if err := os.MkdirAll(s.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}

	// Owner read/write only.
	if err := os.WriteFile(s.Path(), data, 0600); err != nil {
		return fmt.Errorf("failed to write keys.json: %w", err)
	}
	return nil
}

func (s *Store) Set(provider, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrNoAPIKey)
	}
	keys, err := s.load()
	if err != nil {
		return err
	}
	keys[provider] = KeyEntry{Key: key}
	return s.save(keys)
}

// Get returns the stored key, or "" when none is stored.
func (s *Store) Get(provider string) (string, error) {
	keys, err := s.load()
	if err != nil {
		return "", err
	}
	return keys[provider].Key, nil
}

func (s *Store) Delete(provider string) error {
	keys, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := keys[provider]; !ok {
		return fmt.Errorf("%w for %s", ErrKeyNotFound, provider)
	}
	delete(keys, provider)
	return s.save(keys)
}

// List returns stored provider names in sorted order.
func (s *Store) List() ([]string, error) {
	keys, err := s.load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for name := range keys {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// MaskKey hides all but the first and last four characters.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// Resolve finds the API key, in order: the explicit value, the key stored
// for provider, then the first non-empty env var. It returns the key and a
// description of where it came from.
func (s *Store) Resolve(explicit, provider string, envVars ...string) (string, string, error) {
	if explicit != "" {
		return explicit, "command-line flag", nil
	}

	if s != nil {
		if stored, err := s.Get(provider); err == nil && stored != "" {
			return stored, fmt.Sprintf("stored key (%s)", s.Path()), nil
		}
	}

	for _, env := range envVars {
		if v := os.Getenv(env); v != "" {
			return v, fmt.Sprintf("environment variable (%s)", env), nil
		}
	}

	return "", "", fmt.Errorf("%w: run 'chronosnap keys set' or set %s", ErrNoAPIKey, strings.Join(envVars, " or "))
}

// GetAPIKey resolves the Gemini key against the default store and env vars.
func GetAPIKey(explicit string) (string, string, error) {
	store, err := NewStore()
	if err != nil {
		store = nil
	}
	return store.Resolve(explicit, DefaultProvider, DefaultEnvVars...)
}
