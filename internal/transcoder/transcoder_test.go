package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"vdcrpt/internal/services"
	"vdcrpt/internal/testsupport"
)

type capture struct {
	name string
	args []string
}

func setHelperCommand(t *testing.T, mode string) *capture {
	t.Helper()
	got := &capture{}
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		got.name = name
		got.args = append([]string(nil), args...)
		helperArgs := append([]string{"-test.run=TestHelperProcess", "--"}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], helperArgs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("FFMPEG_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
	return got
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}

	switch os.Getenv("FFMPEG_HELPER_MODE") {
	case "success":
		if err := os.WriteFile(args[len(args)-1], []byte("transcoded"), 0o644); err != nil {
			os.Exit(3)
		}
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "input.bin: Invalid data found when processing input")
		os.Exit(1)
	case "sleep":
		time.Sleep(10 * time.Second)
		os.Exit(0)
	case "probe":
		fmt.Println(`{"streams":[{"index":0,"codec_name":"mpeg4","codec_type":"video","width":640,"height":360},` +
			`{"index":1,"codec_name":"pcm_mulaw","codec_type":"audio","sample_rate":"44100","channels":2}],` +
			`"format":{"filename":"clip.avi","nb_streams":2,"format_name":"avi","duration":"12.5","size":"2048","bit_rate":"1310"}}`)
		os.Exit(0)
	case "badjson":
		fmt.Println("not-json")
		os.Exit(0)
	default:
		os.Exit(0)
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transcoder.FFmpegBinary = "/opt/ffmpeg/bin/ffmpeg"
	cfg.Transcoder.FFprobeBinary = "/opt/ffmpeg/bin/ffprobe"
	cfg.Transcoder.Container = "mkv"
	cfg.Transcoder.FinalVideoCodec = "libx265"
	cfg.Transcoder.TimeoutSeconds = 30

	f := NewFromConfig(cfg, nil)
	if f.Binary() != "/opt/ffmpeg/bin/ffmpeg" || f.ProbeBinary() != "/opt/ffmpeg/bin/ffprobe" {
		t.Fatalf("binaries not applied: %q %q", f.Binary(), f.ProbeBinary())
	}
	if f.container != "mkv" || f.finalVideo != "libx265" || f.finalAudio != "aac" || f.timeout != 30*time.Second {
		t.Fatalf("unexpected client %+v", f)
	}
}

func TestIntermediateArgs(t *testing.T) {
	f := New()
	got := f.IntermediateArgs("in.mp4", "out.avi", "mpeg4", "pcm_mulaw", false)
	want := []string{"-n", "-hide_banner", "-loglevel", "error", "-i", "in.mp4", "-c:v", "mpeg4", "-c:a", "pcm_mulaw", "-f", "avi", "out.avi"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("intermediate args mismatch (-want +got):\n%s", diff)
	}
	if got := f.IntermediateArgs("in", "out", "v", "a", true); got[0] != "-y" {
		t.Fatalf("expected -y with overwrite, got %q", got[0])
	}
}

func TestFinalArgs(t *testing.T) {
	got := New().FinalArgs("scratch.avi", "out.mp4")
	want := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-fflags", "+genpts",
		"-i", "scratch.avi",
		"-map_metadata", "-1",
		"-c:v", "libx264", "-c:a", "aac",
		"out.mp4",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("final args mismatch (-want +got):\n%s", diff)
	}
	// genpts applies to the input, so it must precede -i.
	if slices.Index(got, "-fflags") > slices.Index(got, "-i") {
		t.Fatal("-fflags must come before -i")
	}
}

func TestIntermediateRunsFFmpeg(t *testing.T) {
	got := setHelperCommand(t, "success")
	out := filepath.Join(t.TempDir(), "out.avi")

	f := New(WithBinary("my-ffmpeg"))
	if err := f.Intermediate(context.Background(), "in.mp4", out, "mpeg4", "pcm_mulaw", false); err != nil {
		t.Fatalf("Intermediate: %v", err)
	}
	if got.name != "my-ffmpeg" {
		t.Fatalf("expected binary my-ffmpeg, got %q", got.name)
	}
	if string(testsupport.ReadFile(t, out)) != "transcoded" {
		t.Fatal("helper output not written")
	}
}

func TestFinalRunsFFmpeg(t *testing.T) {
	got := setHelperCommand(t, "success")
	out := filepath.Join(t.TempDir(), "out.mp4")
	if err := New().Final(context.Background(), "scratch.avi", out); err != nil {
		t.Fatalf("Final: %v", err)
	}
	if got.args[len(got.args)-1] != out {
		t.Fatalf("expected output path last, got %v", got.args)
	}
}

func TestFailureIsExternalToolError(t *testing.T) {
	setHelperCommand(t, "failure")
	err := New().Final(context.Background(), "scratch.avi", filepath.Join(t.TempDir(), "out.mp4"))
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("expected ffmpeg diagnostic in error, got %v", err)
	}
	if !strings.Contains(err.Error(), PassFinal) {
		t.Fatalf("expected pass name in error, got %v", err)
	}
}

func TestTimeout(t *testing.T) {
	setHelperCommand(t, "sleep")
	f := New(WithTimeout(100 * time.Millisecond))
	err := f.Intermediate(context.Background(), "in.mp4", filepath.Join(t.TempDir(), "o.avi"), "mpeg4", "pcm_mulaw", true)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestCanceledContext(t *testing.T) {
	setHelperCommand(t, "sleep")
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := New().Final(ctx, "scratch.avi", filepath.Join(t.TempDir(), "out.mp4"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, services.ErrExternalTool) {
		t.Fatal("cancellation must not be reported as a tool failure")
	}
}

func TestMissingBinary(t *testing.T) {
	f := New(WithBinary("vdcrpt-test-no-such-ffmpeg"))
	err := f.Final(context.Background(), "scratch.avi", filepath.Join(t.TempDir(), "out.mp4"))
	if !errors.Is(err, services.ErrExternalTool) || !errors.Is(err, exec.ErrNotFound) {
		t.Fatalf("expected not-found external tool error, got %v", err)
	}
}

func TestArgumentValidation(t *testing.T) {
	f := New()
	ctx := context.Background()
	if err := f.Intermediate(ctx, "", "out.avi", "mpeg4", "pcm_mulaw", false); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty input, got %v", err)
	}
	if err := f.Intermediate(ctx, "in", "out.avi", "", "pcm_mulaw", false); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty codec, got %v", err)
	}
	if err := f.Final(ctx, "in", " "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty output, got %v", err)
	}
}
