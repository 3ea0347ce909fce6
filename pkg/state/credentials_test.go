package state

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *FileCredentialStore {
	t.Helper()
	return NewFileCredentialStore(filepath.Join(t.TempDir(), "userdata.json"))
}

func readDocument(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read credentials file: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("credentials file is not valid JSON: %v\n%s", err, data)
	}
	return doc
}

func TestFileCredentialStore_ReadMissingFile(t *testing.T) {
	store := newTestStore(t)

	v, err := store.Read(FieldAccountName)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "" {
		t.Errorf("expected empty value, got %q", v)
	}

	doc := readDocument(t, store.Path())
	if len(doc) != 2 {
		t.Errorf("expected exactly 2 keys, got %d: %v", len(doc), doc)
	}
	for _, key := range []string{"simBrief_userName", "api_token"} {
		if doc[key] != "" {
			t.Errorf("expected %s to be empty string, got %v", key, doc[key])
		}
	}
}

func TestFileCredentialStore_SelfHealsCorruptFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "this is not json {{{"},
		{"missing key", `{"simBrief_userName": "pilot"}`},
		{"wrong type", `{"simBrief_userName": 42, "api_token": "abc"}`},
		{"array", `["a", "b"]`},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			if err := os.WriteFile(store.Path(), []byte(tt.content), 0o600); err != nil {
				t.Fatalf("failed to seed file: %v", err)
			}

			v, err := store.Read(FieldAPIKey)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if v != "" {
				t.Errorf("expected empty value after repair, got %q", v)
			}

			doc := readDocument(t, store.Path())
			if doc["simBrief_userName"] != "" || doc["api_token"] != "" {
				t.Errorf("expected repaired empty document, got %v", doc)
			}
		})
	}
}

func TestFileCredentialStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)

	if err := store.Write(FieldAPIKey, "secret-key"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Write(FieldAccountName, "  pilot42  "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	name, err := store.Read(FieldAccountName)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "pilot42" {
		t.Errorf("expected trimmed pilot42, got %q", name)
	}

	key, err := store.Read(FieldAPIKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "secret-key" {
		t.Errorf("expected other field unchanged, got %q", key)
	}
}

func TestFileCredentialStore_ReadIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	content := "{\n\t\"simBrief_userName\": \"pilot\",\n\t\"api_token\": \"tok\"\n}"
	if err := os.WriteFile(store.Path(), []byte(content), 0o600); err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}

	for i := 0; i < 3; i++ {
		c, err := store.Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.AccountName != "pilot" || c.APIKey != "tok" {
			t.Fatalf("read %d returned %+v", i, c)
		}
	}

	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != content {
		t.Errorf("reads must not rewrite a valid file, got:\n%s", data)
	}
}

func TestFileCredentialStore_StripsQuotedValues(t *testing.T) {
	store := newTestStore(t)
	content := `{"simBrief_userName": "\"pilot\"", "api_token": " tok "}`
	if err := os.WriteFile(store.Path(), []byte(content), 0o600); err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}

	name, err := store.Read(FieldAccountName)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "pilot" {
		t.Errorf("expected pilot, got %q", name)
	}
	key, _ := store.Read(FieldAPIKey)
	if key != "tok" {
		t.Errorf("expected tok, got %q", key)
	}
}

func TestFileCredentialStore_SaveWritesBothFields(t *testing.T) {
	store := newTestStore(t)
	if err := store.Save(Credentials{AccountName: "pilot", APIKey: "key"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc := readDocument(t, store.Path())
	if doc["simBrief_userName"] != "pilot" || doc["api_token"] != "key" {
		t.Errorf("unexpected document: %v", doc)
	}

	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
	}
}

func TestFileCredentialStore_Unwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("failed to create blocker: %v", err)
	}
	// parent "directory" is a regular file, so nothing can be created below it
	store := NewFileCredentialStore(filepath.Join(blocker, "userdata.json"))

	if err := store.Save(Credentials{AccountName: "x"}); !errors.Is(err, ErrStorageUnwritable) {
		t.Errorf("expected ErrStorageUnwritable, got %v", err)
	}
	if _, err := store.Read(FieldAccountName); !errors.Is(err, ErrStorageCorrupt) {
		t.Errorf("expected ErrStorageCorrupt when repair fails, got %v", err)
	}
}

func TestFileCredentialStore_DefaultPath(t *testing.T) {
	store := NewFileCredentialStore("")
	if store.Path() != DefaultCredentialsFile {
		t.Errorf("expected %s, got %s", DefaultCredentialsFile, store.Path())
	}
}

func TestInMemoryCredentialStore(t *testing.T) {
	store := NewInMemoryCredentialStore(Credentials{AccountName: "pilot"})

	t.Run("read seeded value", func(t *testing.T) {
		v, err := store.Read(FieldAccountName)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != "pilot" {
			t.Errorf("expected pilot, got %s", v)
		}
	})

	t.Run("write keeps other field", func(t *testing.T) {
		if err := store.Write(FieldAPIKey, "key"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		c, _ := store.Load()
		if c.AccountName != "pilot" || c.APIKey != "key" {
			t.Errorf("unexpected credentials: %+v", c)
		}
	})
}

func TestResolveCredential(t *testing.T) {
	store := NewInMemoryCredentialStore(Credentials{AccountName: "stored", APIKey: "stored-key"})

	t.Run("store value", func(t *testing.T) {
		t.Setenv("GFD_SIMBRIEF_USERNAME", "")
		v, err := ResolveCredential(FieldAccountName, store)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != "stored" {
			t.Errorf("expected stored, got %s", v)
		}
	})

	t.Run("env override", func(t *testing.T) {
		t.Setenv("GFD_API_TOKEN", "env-key")
		v, err := ResolveCredential(FieldAPIKey, store)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != "env-key" {
			t.Errorf("expected env-key, got %s", v)
		}
	})

	t.Run("nil store", func(t *testing.T) {
		t.Setenv("GFD_API_TOKEN", "")
		v, err := ResolveCredential(FieldAPIKey, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != "" {
			t.Errorf("expected empty, got %s", v)
		}
	})
}

func TestFieldKeys(t *testing.T) {
	if FieldAccountName.Key() != "simBrief_userName" {
		t.Errorf("unexpected account key %s", FieldAccountName.Key())
	}
	if FieldAPIKey.Key() != "api_token" {
		t.Errorf("unexpected api key %s", FieldAPIKey.Key())
	}
}

func TestRedactToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"abc", "***"},
		{"abcd", "***"},
		{"abcdef123", "abcd***"},
	}
	for _, tt := range tests {
		if got := RedactToken(tt.in); got != tt.want {
			t.Errorf("RedactToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
