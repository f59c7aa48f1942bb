package config

import (
	"os"
	"path/filepath"
	"testing"
)

const minimalYAML = `environment: test
kite:
  api_key: ""
  access_token: ""
scan:
  universe: []
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadWithEnvOverridesBeforeValidation(t *testing.T) {
	t.Setenv("KITE_API_KEY", "key-from-env")
	t.Setenv("KITE_ACCESS_TOKEN", "token-from-env")
	t.Setenv("SCAN_UNIVERSE", "RELIANCE,TCS")

	path := writeConfig(t, minimalYAML)
	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v, want nil", err)
	}
	if c.Kite.APIKey != "key-from-env" {
		t.Fatalf("Kite.APIKey = %q, want key-from-env", c.Kite.APIKey)
	}
	if len(c.Scan.Universe) != 2 || c.Scan.Universe[0] != "RELIANCE" {
		t.Fatalf("Scan.Universe = %v, want [RELIANCE TCS]", c.Scan.Universe)
	}
}

func TestLoadRejectsMissingCredentials(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	if _, err := Load(path); err == nil {
		t.Fatal("Load() error = nil, want validation error")
	}
}

func TestShippedConfigValidates(t *testing.T) {
	c, err := Load("../../config/config.yaml")
	if err != nil {
		t.Fatalf("Load(shipped config) error = %v, want nil", err)
	}
	if len(c.Scan.Universe) == 0 {
		t.Fatal("shipped config has empty scan.universe")
	}
}
