package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mia/internal/capture"
	"mia/internal/controller"
	"mia/internal/permission"
	"mia/internal/statestore"
	"mia/internal/testsupport"
)

func TestStartStopUploadsRecording(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("MIA_USER_ID", "user-7")

	out, _, err := runCLI(t, []string{"start", "--url", "https://meet.example/abc-defg-hij"}, env.configPath)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	requireContains(t, out, "Recording requested")

	waitFor(t, 3*time.Second, func() bool { return env.worker.Snapshot().State == capture.StateRecording })
	snap := env.worker.Snapshot()
	if snap.MeetingID != "abc-defg-hij" || snap.UserID != "user-7" || !snap.HasMicrophone {
		t.Fatalf("unexpected session: %+v", snap)
	}
	if badge, _ := controller.Badge(context.Background(), env.store); badge != controller.BadgeRecording {
		t.Fatalf("expected badge %q, got %q", controller.BadgeRecording, badge)
	}
	tabs := env.acquirer.Tabs()
	if len(tabs) != 1 || tabs[0].Handle().Source != "alsa_output.speakers.monitor" {
		t.Fatalf("expected the default sink monitor to be acquired, got %d tabs", len(tabs))
	}

	time.Sleep(30 * time.Millisecond)
	out, _, err = runCLI(t, []string{"stop"}, env.configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Stop requested")

	artifact, ok := env.sink.Next(3 * time.Second)
	if !ok {
		t.Fatal("expected an uploaded artifact")
	}
	if artifact.Metadata.MeetingID != "abc-defg-hij" || len(artifact.Data) == 0 {
		t.Fatalf("unexpected artifact: meeting=%q bytes=%d", artifact.Metadata.MeetingID, len(artifact.Data))
	}
	if badge, _ := controller.Badge(context.Background(), env.store); badge != controller.BadgeIdle {
		t.Fatalf("expected badge cleared after stop, got %q", badge)
	}
}

func TestStartUnknownSourceSendsNothing(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"start", "--source", "missing.monitor"}, env.configPath)
	if !errors.Is(err, controller.ErrTabUnavailable) {
		t.Fatalf("expected ErrTabUnavailable, got %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if state := env.worker.Snapshot().State; state != capture.StateIdle {
		t.Fatalf("expected worker idle, got %s", state)
	}
	if len(env.acquirer.Tabs()) != 0 {
		t.Fatal("expected no acquisition")
	}
}

func TestStartWithoutMicrophoneConsentRecordsTabOnly(t *testing.T) {
	env := setupCLITestEnv(t)
	env.acquirer.MicErr = testsupport.ErrFake

	out, _, err := runCLI(t, []string{"start", "--source", "alsa_output.speakers.monitor"}, env.configPath)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	requireContains(t, out, "Recording requested")

	waitFor(t, 3*time.Second, func() bool { return env.worker.Snapshot().State == capture.StateRecording })
	if env.worker.Snapshot().HasMicrophone {
		t.Fatal("expected tab-only recording")
	}
	status, err := permission.NewGrants(env.store).Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != permission.StatusPrompt {
		t.Fatalf("a dismissed gate must not record an answer, got %s", status)
	}
}

func TestStopWithoutDaemonSucceeds(t *testing.T) {
	_, configPath := setupCLIConfig(t)

	out, _, err := runCLI(t, []string{"stop"}, configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Stop requested")
}

func TestSyncRepublishesFlag(t *testing.T) {
	cfg, configPath := setupCLIConfig(t)

	if _, _, err := runCLI(t, []string{"sync", "--recording=true"}, configPath); err != nil {
		t.Fatalf("sync: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	if on, _ := store.Bool(ctx, statestore.KeyUIRecording); !on {
		t.Fatal("expected ui.recording to be true")
	}
	if badge, _ := controller.Badge(ctx, store); badge != controller.BadgeRecording {
		t.Fatalf("expected badge %q, got %q", controller.BadgeRecording, badge)
	}

	if _, _, err := runCLI(t, []string{"sync", "--recording=false"}, configPath); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if on, _ := store.Bool(ctx, statestore.KeyUIRecording); on {
		t.Fatal("expected ui.recording to be false")
	}
}

func TestStatusJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := permission.NewGrants(env.store).Grant(context.Background()); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	out, _, err := runCLI(t, []string{"status", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var report statusReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode status: %v\n%s", err, out)
	}
	if !report.Daemon.Running || report.Daemon.PID != os.Getpid() {
		t.Fatalf("unexpected daemon status: %+v", report.Daemon)
	}
	if report.Recording || report.Permission != permission.StatusGranted {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Session == nil || report.Session.State != capture.StateIdle {
		t.Fatalf("expected idle session, got %+v", report.Session)
	}
}

func TestStatusTableWithoutDaemon(t *testing.T) {
	_, configPath := setupCLIConfig(t)

	out, _, err := runCLI(t, []string{"status"}, configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Not Running")
	requireContains(t, out, "Microphone Permission")
	requireContains(t, out, "Prompt")
}

func TestMicrophoneCheckCommand(t *testing.T) {
	tests := []struct {
		name   string
		micErr error
		want   string
	}{
		{name: "available", want: "Microphone available"},
		{name: "unavailable", micErr: testsupport.ErrFake, want: "Microphone unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupCLITestEnv(t)
			env.acquirer.MicErr = tt.micErr

			out, _, err := runCLI(t, []string{"probe"}, env.configPath)
			if err != nil {
				t.Fatalf("mia probe: %v", err)
			}
			requireContains(t, out, tt.want)
		})
	}
}

func TestMicrophoneCheckWithoutDaemon(t *testing.T) {
	_, configPath := setupCLIConfig(t)

	_, _, err := runCLI(t, []string{"probe"}, configPath)
	if err == nil {
		t.Fatal("expected dial error")
	}
	requireContains(t, err.Error(), "connect to daemon")
}

func TestPermissionCommands(t *testing.T) {
	_, configPath := setupCLIConfig(t)

	steps := []struct {
		args []string
		want string
	}{
		{[]string{"permission", "status"}, "Microphone permission: prompt"},
		{[]string{"permission", "grant"}, "Microphone permission: granted"},
		{[]string{"permission", "status"}, "Microphone permission: granted"},
		{[]string{"permission", "deny"}, "Microphone permission: denied"},
		{[]string{"permission", "reset"}, "Microphone permission: prompt"},
	}
	for _, step := range steps {
		out, _, err := runCLI(t, step.args, configPath)
		if err != nil {
			t.Fatalf("%v: %v", step.args, err)
		}
		requireContains(t, out, step.want)
	}
}

func TestShutdownWithoutDaemon(t *testing.T) {
	_, configPath := setupCLIConfig(t)

	out, _, err := runCLI(t, []string{"shutdown"}, configPath)
	if err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}

func TestConfigInitAndValidate(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "mia.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}

	cfg, configPath := setupCLIConfig(t)
	out, _, err = runCLI(t, []string{"config", "validate"}, configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, configPath)
	if _, err := os.Stat(cfg.Paths.StateDir); err != nil {
		t.Fatalf("expected state dir to exist: %v", err)
	}
}
