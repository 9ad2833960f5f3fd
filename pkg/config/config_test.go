package config

import (
	"os"
	"path/filepath"
	"testing"
)

type sampleConfig struct {
	Host    string `envconfig:"HOST" default:"localhost"`
	Retries int    `envconfig:"RETRIES" default:"3"`
}

func TestNewReadsPrefixedEnvironment(t *testing.T) {
	t.Setenv("SAMPLE_HOST", "db.internal")

	cfg, err := New[sampleConfig]("SAMPLE")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if cfg.Host != "db.internal" {
		t.Fatalf("Host = %q, want db.internal", cfg.Host)
	}
	if cfg.Retries != 3 {
		t.Fatalf("Retries = %d, want default 3", cfg.Retries)
	}
}

func TestNewLoadsEnvFileWithoutOverridingEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.env")
	content := "SAMPLE_HOST=file.internal\nSAMPLE_RETRIES=9\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("ENV_FILE", path)
	t.Setenv("SAMPLE_HOST", "env.internal")
	t.Cleanup(func() { os.Unsetenv("SAMPLE_RETRIES") })

	cfg, err := New[sampleConfig]("SAMPLE")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if cfg.Host != "env.internal" {
		t.Fatalf("Host = %q, existing environment must win over the file", cfg.Host)
	}
	if cfg.Retries != 9 {
		t.Fatalf("Retries = %d, want 9 from the file", cfg.Retries)
	}
}

func TestNewMissingExplicitEnvFileFails(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))

	if _, err := New[sampleConfig]("SAMPLE"); err == nil {
		t.Fatal("expected error when ENV_FILE names a missing file")
	}
}
