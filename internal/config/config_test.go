package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	t.Setenv(EnvPort, "")
	t.Setenv(EnvDataDir, "")
	t.Setenv(EnvTranscribeURL, "")
	t.Setenv(EnvPipelinesModule, "")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.PipelinesModule() != DefaultPipelinesModule {
		t.Errorf("PipelinesModule = %q", cfg.PipelinesModule())
	}
	if cfg.TranscribeURL() != "" {
		t.Errorf("TranscribeURL = %q, want empty", cfg.TranscribeURL())
	}
	if filepath.Base(cfg.DBPath()) != DBFilename {
		t.Errorf("DBPath = %q", cfg.DBPath())
	}
}

func TestDerivedDirs(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tests := map[string]string{
		"exports":   cfg.ExportsDir(),
		"work":      cfg.WorkDir(),
		"artifacts": cfg.ArtifactsDir(),
	}
	for name, got := range tests {
		if got != filepath.Join(dir, name) {
			t.Errorf("%s dir = %q, want under %q", name, got, dir)
		}
	}
}

func TestInvalidPort(t *testing.T) {
	for _, v := range []string{"abc", "0", "70000"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv(EnvPort, v)
			if _, err := FromEnv(); err == nil {
				t.Errorf("port %q should be rejected", v)
			}
		})
	}
}

func TestHeadless(t *testing.T) {
	t.Setenv(EnvHeadless, "true")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Headless() {
		t.Error("Headless = false, want true")
	}

	t.Setenv(EnvHeadless, "maybe")
	if _, err := FromEnv(); err == nil {
		t.Error("invalid headless value should be rejected")
	}
}

func TestTranscribeURL_TrimsSlash(t *testing.T) {
	t.Setenv(EnvTranscribeURL, "https://stt.example.com/")
	cfg, _ := FromEnv()
	if cfg.TranscribeURL() != "https://stt.example.com" {
		t.Errorf("TranscribeURL = %q", cfg.TranscribeURL())
	}
}

func TestNew_LoadsEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "agent.env")
	content := "EASYCLIPS_PORT=9911\nEASYCLIPS_LOG_LEVEL=debug\n"
	if err := os.WriteFile(envFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvEnvFile, envFile)
	t.Setenv(EnvLogLevel, "warn")
	os.Unsetenv(EnvPort)
	t.Cleanup(func() { os.Unsetenv(EnvPort) })

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9911 {
		t.Errorf("Port = %d, want 9911 from env file", cfg.Port())
	}
	if cfg.LogLevel() != "warn" {
		t.Errorf("LogLevel = %q, process env should win over env file", cfg.LogLevel())
	}
}

func TestNew_MissingExplicitEnvFile(t *testing.T) {
	t.Setenv(EnvEnvFile, filepath.Join(t.TempDir(), "missing.env"))
	if _, err := New(); err == nil {
		t.Error("missing explicit env file should be an error")
	}
}
