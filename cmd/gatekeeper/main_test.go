package main

import (
	"os"
	"path/filepath"
	"testing"

	"examforge/gatekeeper/pkg/cli"
)

// withFlags sets the global flags for one test and restores them after.
func withFlags(t *testing.T, config, output string) {
	t.Helper()

	origConfig, origEnv, origOutput := cfgFile, envFile, outputFormat
	cfgFile, envFile, outputFormat = config, "", output
	t.Cleanup(func() {
		cfgFile, envFile, outputFormat = origConfig, origEnv, origOutput
	})
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gatekeeper.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	withFlags(t, "", string(cli.FormatText))

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Storage.Backend == "" {
		t.Error("Expected default storage backend")
	}
}

func TestLoadConfig_EnvFile(t *testing.T) {
	for _, name := range []string{"AI_DAILY_TOKEN_LIMIT", "GATEKEEPER_LIMITS_DAILY_TOKEN_LIMIT"} {
		if _, ok := os.LookupEnv(name); ok {
			t.Skipf("%s already set in the environment", name)
		}
	}

	env := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(env, []byte("AI_DAILY_TOKEN_LIMIT=12345\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("AI_DAILY_TOKEN_LIMIT") })

	withFlags(t, "", string(cli.FormatText))
	envFile = env

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Limits.DailyTokenLimit != 12345 {
		t.Errorf("DailyTokenLimit = %d, want 12345", cfg.Limits.DailyTokenLimit)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: "floppy"
`)
	withFlags(t, path, string(cli.FormatText))

	_, err := loadConfig()
	if err == nil {
		t.Fatal("Expected error for invalid config")
	}
	if cli.ExitCode(err) != cli.ExitConfigError {
		t.Errorf("ExitCode() = %d, want %d", cli.ExitCode(err), cli.ExitConfigError)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"run", "version", "policies", "counters"}

	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd == rootCmd {
			t.Errorf("Command %q not registered", name)
		}
	}

	for _, sub := range []string{"peek", "sweep"} {
		cmd, _, err := rootCmd.Find([]string{"counters", sub})
		if err != nil || cmd.Name() != sub {
			t.Errorf("Command counters %q not registered", sub)
		}
	}
}
