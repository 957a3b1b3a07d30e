package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRootCommandWiring(t *testing.T) {
	root := newRootCommand()
	want := []string{"ingest", "identify", "decide", "plan", "apply", "run", "status", "cache", "config", "recover"}
	for _, name := range want {
		found := false
		for _, cmd := range root.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("missing %q subcommand", name)
		}
	}
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	path := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[paths]
library_dir = %q
state_dir = %q
`, filepath.Join(base, "library"), filepath.Join(base, "state"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("execute %v: %v", args, err)
	}
	return out.String()
}

func TestConfigValidate(t *testing.T) {
	path := writeTestConfig(t)
	out := execute(t, "--config", path, "config", "validate")
	if !strings.Contains(out, "valid") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestStatusEmpty(t *testing.T) {
	path := writeTestConfig(t)
	out := execute(t, "--config", path, "status")
	if !strings.Contains(out, "no directories registered") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestCacheStatsEmpty(t *testing.T) {
	path := writeTestConfig(t)
	out := execute(t, "--config", path, "cache", "stats")
	if !strings.Contains(out, "cache is empty") {
		t.Fatalf("unexpected output %q", out)
	}
}
