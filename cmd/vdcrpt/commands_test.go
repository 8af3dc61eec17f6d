package main

import (
	"os"
	"path/filepath"
	"testing"

	"vdcrpt/internal/services"
)

func TestPresetsCommand(t *testing.T) {
	env := setupCLITestEnv(t, `
[[presets]]
name = "subtle"
description = "Quieter than the built-in"
iterations = 5
effects = ["stutter:50:2"]

[[presets]]
name = "Crunch"
effects = ["mod:3", "dilate:2"]
`)

	stdout, _, err := runCLI(t, env.configPath, "presets")
	if err != nil {
		t.Fatalf("presets: %v", err)
	}
	requireContains(t, stdout, "Melting Chaos")
	requireContains(t, stdout, "stutter:1000:10-90")
	requireContains(t, stdout, "Crunch")

	stdout, _, err = runCLI(t, env.configPath, "--json", "presets")
	if err != nil {
		t.Fatalf("presets --json: %v", err)
	}
	var views []presetView
	decodeJSON(t, stdout, &views)
	byName := make(map[string]presetView, len(views))
	for _, v := range views {
		byName[v.Name] = v
	}
	if _, ok := byName["Subtle"]; ok {
		t.Fatal("built-in Subtle should be replaced by the configured preset")
	}
	subtle, ok := byName["subtle"]
	if !ok || subtle.BuiltIn || subtle.Iterations != 5 {
		t.Fatalf("unexpected configured subtle preset %+v", subtle)
	}
	if crunch := byName["Crunch"]; len(crunch.Effects) != 2 || crunch.Effects[1] != "dilate:2" {
		t.Fatalf("unexpected Crunch preset %+v", crunch)
	}
	if len(views) != 8 {
		t.Fatalf("expected 7 built-ins plus 1 new preset, got %d", len(views))
	}
}

func TestCacheCommands(t *testing.T) {
	env := setupCLITestEnv(t, "")

	stdout, _, err := runCLI(t, env.configPath, "cache", "stats")
	if err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	requireContains(t, stdout, "Entries: 0")
	requireContains(t, stdout, "Cached intermediates: none")

	if _, _, err := runCLI(t, env.configPath, "corrupt", env.input, env.output("c.mp4"), "--effect", "reverse"); err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	stdout, _, err = runCLI(t, env.configPath, "cache", "stats")
	if err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	requireContains(t, stdout, "Entries: 1")
	requireContains(t, stdout, "_mpeg4_pcm-mulaw")
	requireContains(t, stdout, "4.0 KiB")

	stdout, _, err = runCLI(t, env.configPath, "cache", "clear")
	if err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	requireContains(t, stdout, "Removed 1 cache entries")

	stdout, _, err = runCLI(t, env.configPath, "cache", "prune")
	if err != nil {
		t.Fatalf("cache prune: %v", err)
	}
	requireContains(t, stdout, "No cache entries pruned")
}

func TestHistoryCommands(t *testing.T) {
	env := setupCLITestEnv(t, "")

	stdout, _, err := runCLI(t, env.configPath, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, stdout, "No runs recorded")

	for _, name := range []string{"1.mp4", "2.mp4", "3.mp4"} {
		if _, _, err := runCLI(t, env.configPath, "corrupt", env.input, env.output(name), "--effect", "reverse", "-n", "1"); err != nil {
			t.Fatalf("corrupt: %v", err)
		}
	}

	stdout, _, err = runCLI(t, env.configPath, "history", "--limit", "2")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, stdout, "3.mp4")
	requireContains(t, stdout, "2.mp4")

	stdout, _, err = runCLI(t, env.configPath, "--json", "history", "--limit", "2")
	if err != nil {
		t.Fatalf("history --json: %v", err)
	}
	var runs []historyView
	decodeJSON(t, stdout, &runs)
	if len(runs) != 2 || runs[0].Output != env.output("3.mp4") {
		t.Fatalf("expected newest two runs, got %+v", runs)
	}

	stdout, _, err = runCLI(t, env.configPath, "history", "--clear")
	if err != nil {
		t.Fatalf("history --clear: %v", err)
	}
	requireContains(t, stdout, "Removed 3 history entries")
}

func TestHistoryDisabled(t *testing.T) {
	env := setupCLITestEnv(t, "\n[history]\nenabled = false\n")
	stdout, _, err := runCLI(t, env.configPath, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, stdout, "History is disabled")
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t, "")

	out, _, err := runCLI(t, env.configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Config path: "+env.configPath)
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err = runCLI(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	_, _, err = runCLI(t, "", "config", "init", "--path", target)
	if code := services.ExitCode(err); code != services.ExitUsage {
		t.Fatalf("expected usage error for existing config, got %d (%v)", code, err)
	}
	if _, _, err := runCLI(t, "", "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestInvalidConfigIsConfigurationError(t *testing.T) {
	env := setupCLITestEnv(t, "\n[cache]\nmax_gib = -1\n")
	_, _, err := runCLI(t, env.configPath, "presets")
	if code := services.ExitCode(err); code != services.ExitUsage {
		t.Fatalf("expected configuration exit code, got %d (%v)", code, err)
	}
	_, _, err = runCLI(t, setupCLITestEnv(t, "").configPath, "--log-level", "loud", "presets")
	if code := services.ExitCode(err); code != services.ExitUsage {
		t.Fatalf("expected configuration exit code for bad --log-level, got %d (%v)", code, err)
	}
}

func TestDoctorCommand(t *testing.T) {
	tools := t.TempDir()
	ffmpeg := filepath.Join(tools, "ffmpeg")
	ffprobe := filepath.Join(tools, "ffprobe")
	writeScript(t, ffmpeg, "exit 0\n")
	writeScript(t, ffprobe, "exit 0\n")

	env := setupCLITestEnv(t, "\n[transcoder]\nffmpeg = \""+ffmpeg+"\"\nffprobe = \""+ffprobe+"\"\n")
	stdout, _, err := runCLI(t, env.configPath, "doctor")
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, stdout)
	}
	requireContains(t, stdout, "FFmpeg")
	requireContains(t, stdout, "Cache directory")

	env = setupCLITestEnv(t, "\n[transcoder]\nffmpeg = \"vdcrpt-test-no-such-ffmpeg\"\n")
	stdout, _, err = runCLI(t, env.configPath, "--json", "doctor")
	if code := services.ExitCode(err); code != services.ExitExternal {
		t.Fatalf("expected external-tool exit code, got %d (%v)", code, err)
	}
	var checks []checkView
	decodeJSON(t, stdout, &checks)
	if len(checks) == 0 || checks[0].Name != "FFmpeg" || checks[0].Passed {
		t.Fatalf("unexpected checks %+v", checks)
	}
}

func TestProbeCommand(t *testing.T) {
	ffprobe := filepath.Join(t.TempDir(), "ffprobe")
	writeScript(t, ffprobe, `cat <<'JSON'
{"streams":[{"index":0,"codec_name":"mpeg4","codec_type":"video","width":640,"height":480},
{"index":1,"codec_name":"pcm_mulaw","codec_type":"audio","sample_rate":"8000","channels":1}],
"format":{"filename":"clip.avi","nb_streams":2,"format_name":"avi","duration":"12.500000","size":"2048000","bit_rate":"1310720"}}
JSON
`)
	env := setupCLITestEnv(t, "\n[transcoder]\nffprobe = \""+ffprobe+"\"\n")

	stdout, _, err := runCLI(t, env.configPath, "probe", env.input)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	requireContains(t, stdout, "Format:   avi")
	requireContains(t, stdout, "Duration: 12.50s")
	requireContains(t, stdout, "640x480")
	requireContains(t, stdout, "8000 Hz, 1 ch")

	if _, _, err := runCLI(t, env.configPath, "probe"); services.ExitCode(err) != services.ExitUsage {
		t.Fatalf("expected usage error without FILE, got %v", err)
	}
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	env := setupCLITestEnv(t, "")
	_, _, err := runCLI(t, env.configPath, "presets", "--nope")
	if code := services.ExitCode(err); code != services.ExitUsage {
		t.Fatalf("expected usage exit code, got %d (%v)", code, err)
	}
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("VDCRPT_TEST_ENV=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VDCRPT_TEST_ENV", "")
	os.Unsetenv("VDCRPT_TEST_ENV")
	if err := loadEnvFiles([]string{filepath.Join(dir, "missing.env"), path}); err != nil {
		t.Fatalf("loadEnvFiles: %v", err)
	}
	if got := os.Getenv("VDCRPT_TEST_ENV"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}

	t.Setenv("VDCRPT_TEST_ENV", "preset")
	if err := loadEnvFiles([]string{path}); err != nil {
		t.Fatalf("loadEnvFiles: %v", err)
	}
	if got := os.Getenv("VDCRPT_TEST_ENV"); got != "preset" {
		t.Fatalf("existing variable was overridden: %q", got)
	}
}
