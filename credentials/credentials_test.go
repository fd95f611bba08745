package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeCredsFile(t *testing.T, content string, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.toml")
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeCredsFile(t, `
[openai]
api_key = "sk-test-openai"

[openrouter]
api_key = "sk-or-test"

[empty]
api_key = ""
`, 0400)

	creds, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if got := creds.APIKey("openai"); got != "sk-test-openai" {
		t.Errorf("APIKey(openai) = %q", got)
	}
	if !creds.HasCredential("openrouter") {
		t.Error("HasCredential(openrouter) = false")
	}
	if creds.HasCredential("empty") {
		t.Error("empty api_key should not count as a credential")
	}
}

func TestLoadFile_InsecurePermissions(t *testing.T) {
	path := writeCredsFile(t, `[openai]
api_key = "sk-test"
`, 0644)

	_, err := LoadFile(path)
	if !errors.Is(err, ErrInsecurePermissions) {
		t.Errorf("LoadFile error = %v, want ErrInsecurePermissions", err)
	}
}

func TestEnvFallback(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "sk-or-env")
	t.Setenv("OPENAI_API_KEY", "")

	creds := New()
	if !creds.HasCredential("openrouter") {
		t.Error("env var should satisfy HasCredential")
	}
	if creds.HasCredential("openai") {
		t.Error("blank env var must not satisfy HasCredential")
	}
}

func TestRuntimeSetRemove(t *testing.T) {
	t.Setenv("ACME_API_KEY", "")

	creds := New()
	if creds.HasCredential("acme") {
		t.Fatal("acme should start without credentials")
	}

	creds.Set("acme", "key-1")
	if !creds.HasCredential("acme") {
		t.Error("Set should make the credential available immediately")
	}

	creds.Remove("acme")
	if creds.HasCredential("acme") {
		t.Error("Remove should take effect immediately")
	}
}

func TestNormalizedSections(t *testing.T) {
	path := writeCredsFile(t, `
[open-router]
api_key = "sk-or"
`, 0400)

	creds, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !creds.HasCredential("openrouter") {
		t.Error("dashed section name should serve the undashed provider")
	}
}

func TestStatic(t *testing.T) {
	s := Static{"openai": "sk-a"}
	if !s.HasCredential("OpenAI") {
		t.Error("Static should match case-insensitively")
	}
	if s.HasCredential("openrouter") {
		t.Error("missing provider should not have a credential")
	}
}
