// Package state provides persisted application state for gfd: the
// credentials file read by the resolvers and the desktop UI preferences.
package state

// credentials.go
//
// Credential storage for the flight-plan account name and the METAR API key.
//
// Design Notes:
//   * The on-disk document is a two-field JSON object (simBrief_userName, api_token)
//   * A missing or malformed document is rewritten with empty values on read
//   * Every write replaces the whole document; one mutex per store serializes
//     all read-modify-write cycles against the file
//
// Security Guidance:
//   * Avoid logging raw API keys; use RedactToken before emitting values

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// DefaultCredentialsFile is the credentials document used when no path is configured.
const DefaultCredentialsFile = "userdata.json"

// Field identifies one of the two persisted credential values.
type Field int

const (
	// FieldAccountName is the flight-planning service account name.
	FieldAccountName Field = iota
	// FieldAPIKey is the METAR provider API key.
	FieldAPIKey
)

// Key returns the JSON key the field is stored under.
func (f Field) Key() string {
	switch f {
	case FieldAccountName:
		return "simBrief_userName"
	case FieldAPIKey:
		return "api_token"
	default:
		return ""
	}
}

// EnvVar returns the environment variable that overrides the stored value.
func (f Field) EnvVar() string {
	switch f {
	case FieldAccountName:
		return "GFD_SIMBRIEF_USERNAME"
	case FieldAPIKey:
		return "GFD_API_TOKEN"
	default:
		return ""
	}
}

func (f Field) String() string {
	switch f {
	case FieldAccountName:
		return "account name"
	case FieldAPIKey:
		return "api key"
	default:
		return fmt.Sprintf("Field(%d)", int(f))
	}
}

// Credentials is the full persisted document.
type Credentials struct {
	AccountName string `json:"simBrief_userName"`
	APIKey      string `json:"api_token"`
}

// Get returns the value of a single field.
func (c Credentials) Get(f Field) string {
	switch f {
	case FieldAccountName:
		return c.AccountName
	case FieldAPIKey:
		return c.APIKey
	default:
		return ""
	}
}

// Set replaces the value of a single field.
func (c *Credentials) Set(f Field, v string) {
	switch f {
	case FieldAccountName:
		c.AccountName = v
	case FieldAPIKey:
		c.APIKey = v
	}
}

// CredentialStore defines the contract for credential persistence.
type CredentialStore interface {
	// Read returns a single field, self-healing a corrupt backing document.
	Read(field Field) (string, error)
	// Write replaces a single field, keeping the other one unchanged.
	Write(field Field, value string) error
	// Load returns both fields under one lock acquisition.
	Load() (Credentials, error)
	// Save replaces both fields under one lock acquisition.
	Save(c Credentials) error
}

var (
	// ErrStorageCorrupt is returned when a corrupt credentials file cannot be repaired.
	ErrStorageCorrupt = errors.New("credential storage corrupt")
	// ErrStorageUnwritable is returned when the credentials file cannot be written.
	ErrStorageUnwritable = errors.New("credential storage unwritable")
)

// FileCredentialStore persists credentials in a JSON document on disk.
type FileCredentialStore struct {
	mu   sync.Mutex
	path string
}

// NewFileCredentialStore creates a store backed by path (DefaultCredentialsFile if empty).
func NewFileCredentialStore(path string) *FileCredentialStore {
	if path == "" {
		path = DefaultCredentialsFile
	}
	return &FileCredentialStore{path: path}
}

// Path returns the backing file path.
func (s *FileCredentialStore) Path() string {
	return s.path
}

// Read returns the trimmed value of field.
func (s *FileCredentialStore) Read(field Field) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.loadLocked()
	if err != nil {
		return "", err
	}
	return c.Get(field), nil
}

// Write reads the other field and rewrites the whole document.
func (s *FileCredentialStore) Write(field Field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.loadLocked()
	if err != nil {
		return err
	}
	c.Set(field, normalizeValue(value))
	return s.writeLocked(c)
}

// Load returns both fields.
func (s *FileCredentialStore) Load() (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Save rewrites the document with both fields.
func (s *FileCredentialStore) Save(c Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(Credentials{
		AccountName: normalizeValue(c.AccountName),
		APIKey:      normalizeValue(c.APIKey),
	})
}

// rawCredentials uses pointers so missing keys can be told apart from empty values.
type rawCredentials struct {
	AccountName *string `json:"simBrief_userName"`
	APIKey      *string `json:"api_token"`
}

func (s *FileCredentialStore) loadLocked() (Credentials, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		slog.Info("Credentials file unreadable, creating it", "path", s.path, "error", err)
		return Credentials{}, s.repairLocked()
	}

	var raw rawCredentials
	if err := json.Unmarshal(data, &raw); err != nil || raw.AccountName == nil || raw.APIKey == nil {
		slog.Warn("Credentials file malformed, resetting to defaults", "path", s.path)
		return Credentials{}, s.repairLocked()
	}

	return Credentials{
		AccountName: normalizeValue(*raw.AccountName),
		APIKey:      normalizeValue(*raw.APIKey),
	}, nil
}

func (s *FileCredentialStore) repairLocked() error {
	if err := s.writeLocked(Credentials{}); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
	}
	return nil
}

func (s *FileCredentialStore) writeLocked(c Credentials) error {
	out, err := json.MarshalIndent(c, "", "\t")
	if err != nil {
		return fmt.Errorf("%w: marshal failed: %v", ErrStorageUnwritable, err)
	}
	if err := writeFileAtomic(s.path, append(out, '\n')); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnwritable, err)
	}
	return nil
}

// normalizeValue strips whitespace and any surrounding quote characters.
func normalizeValue(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		v = strings.TrimSpace(v[1 : len(v)-1])
	}
	return v
}

// InMemoryCredentialStore is a thread-safe, volatile implementation.
// Useful for tests and ephemeral sessions.
type InMemoryCredentialStore struct {
	mu    sync.RWMutex
	creds Credentials
}

// NewInMemoryCredentialStore creates a store seeded with c.
func NewInMemoryCredentialStore(c Credentials) *InMemoryCredentialStore {
	return &InMemoryCredentialStore{creds: c}
}

// Read returns the value of field.
func (s *InMemoryCredentialStore) Read(field Field) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.Get(field), nil
}

// Write replaces the value of field.
func (s *InMemoryCredentialStore) Write(field Field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds.Set(field, normalizeValue(value))
	return nil
}

// Load returns both fields.
func (s *InMemoryCredentialStore) Load() (Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds, nil
}

// Save replaces both fields.
func (s *InMemoryCredentialStore) Save(c Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = Credentials{
		AccountName: normalizeValue(c.AccountName),
		APIKey:      normalizeValue(c.APIKey),
	}
	return nil
}

// ResolveCredential returns the value for field.
// Lookup order:
//  1. Environment variable (GFD_SIMBRIEF_USERNAME / GFD_API_TOKEN)
//  2. CredentialStore (if provided)
//
// It returns an empty string if none is found. Always redact keys before logging.
func ResolveCredential(field Field, cs CredentialStore) (string, error) {
	if v := strings.TrimSpace(os.Getenv(field.EnvVar())); v != "" {
		return v, nil
	}
	if cs == nil {
		return "", nil
	}
	v, err := cs.Read(field)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", field, err)
	}
	return v, nil
}

// RedactToken safely redacts a token for logging purposes.
func RedactToken(tok string) string {
	if tok == "" {
		return ""
	}
	if len(tok) <= 4 {
		return "***"
	}
	return tok[:4] + "***"
}
