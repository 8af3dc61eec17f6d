package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vdcrpt/internal/config"
	"vdcrpt/internal/testsupport"
	"vdcrpt/internal/transcoder"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
	fake       *testsupport.FakeTranscoder
	input      string
}

func setupCLITestEnv(t *testing.T, extra string) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	env := &cliTestEnv{
		cfg:        cfg,
		configPath: filepath.Join(base, "vdcrpt.toml"),
		baseDir:    base,
		fake:       &testsupport.FakeTranscoder{},
		input:      filepath.Join(base, "media", "clip.mp4"),
	}
	testsupport.WriteBytes(t, env.input, testsupport.Pattern(4096))

	content := fmt.Sprintf(`[paths]
cache_dir = %q
scratch_dir = %q
log_dir = %q

[logging]
level = "error"
color = "never"

[metrics]
textfile = %q
`, cfg.Paths.CacheDir, cfg.Paths.ScratchDir, cfg.Paths.LogDir, filepath.Join(base, "metrics", "vdcrpt.prom"))
	if err := os.WriteFile(env.configPath, []byte(content+extra), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	orig := newTranscoder
	newTranscoder = func(*config.Config, *slog.Logger) transcoder.Transcoder { return env.fake }
	t.Cleanup(func() { newTranscoder = orig })

	return env
}

func (e *cliTestEnv) output(name string) string {
	return filepath.Join(e.baseDir, "out", name)
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--env-file", ""}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func decodeJSON(t *testing.T, data string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(data), v); err != nil {
		t.Fatalf("decode json: %v\n%s", err, data)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func writeScript(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
}
