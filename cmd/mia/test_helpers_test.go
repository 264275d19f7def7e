package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mia/internal/capture"
	"mia/internal/config"
	"mia/internal/daemon"
	"mia/internal/ipc"
	"mia/internal/logging"
	"mia/internal/media"
	"mia/internal/statestore"
	"mia/internal/testsupport"
)

const fakePactl = `#!/bin/sh
case "$*" in
  "get-default-sink") echo "alsa_output.speakers" ;;
  "get-default-source") echo "alsa_input.mic" ;;
  "list short sources")
    printf '0\talsa_output.speakers.monitor\tmodule-alsa-card.c\ts16le 2ch 48000Hz\tIDLE\n'
    printf '1\talsa_input.mic\tmodule-alsa-card.c\ts16le 1ch 48000Hz\tRUNNING\n'
    ;;
  *) exit 1 ;;
esac
`

type cliTestEnv struct {
	cfg        *config.Config
	store      *statestore.Store
	worker     *capture.Worker
	acquirer   *testsupport.FakeAcquirer
	sink       *testsupport.RecordingSink
	daemon     *daemon.Daemon
	socketPath string
	configPath string
}

// setupCLIConfig writes a config file whose directories live under a temp dir
// and whose pactl is a script reporting one speaker monitor and one microphone.
func setupCLIConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)

	pactl := filepath.Join(base, "pactl")
	if err := os.WriteFile(pactl, []byte(fakePactl), 0o755); err != nil {
		t.Fatalf("write pactl stub: %v", err)
	}
	cfg.Capture.PactlBinary = pactl
	cfg.Logging.Level = "error"

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	return cfg, configPath
}

// setupCLITestEnv runs a daemon with a fake capture pipeline behind the
// configured socket.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	cfg, configPath := setupCLIConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	env := &cliTestEnv{
		cfg:        cfg,
		store:      testsupport.MustOpenStore(t, cfg),
		acquirer:   testsupport.NewFakeAcquirer(2 * time.Millisecond),
		sink:       testsupport.NewRecordingSink(),
		socketPath: cfg.SocketPath(),
		configPath: configPath,
	}
	env.worker = capture.New(capture.Options{
		Acquirer:    env.acquirer,
		Resolver:    testsupport.FakeResolver{},
		Encoder:     &testsupport.FakeEncoder{},
		Bus:         media.NewBus(media.DefaultFormat, 200, nil),
		Sink:        env.sink,
		SideChannel: env.store,
		SinkTimeout: time.Second,
		Logger:      logging.NewNop(),
	})

	d, err := daemon.New(cfg, env.worker, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	env.daemon = d

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, env.socketPath, d, logging.NewNop())
	if err != nil {
		cancel()
		d.Close()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})
	return env
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nstate_dir = %q\nlog_dir = %q\n\n[capture]\npactl_binary = %q\n\n[permission]\nsettle_delay_ms = %d\ngate_timeout = 1\n\n[auth]\nsession_file = %q\n\n[logging]\nlevel = %q\n",
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Capture.PactlBinary,
		cfg.Permission.SettleDelayMillis,
		cfg.Auth.SessionFile,
		cfg.Logging.Level,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
