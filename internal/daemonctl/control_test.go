package daemonctl_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"mia/internal/daemonctl"
)

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mia.pid")

	if pid, err := daemonctl.ReadPID(path); err != nil || pid != 0 {
		t.Fatalf("missing pid file = %d, %v", pid, err)
	}
	if err := os.WriteFile(path, []byte("4242\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if pid, err := daemonctl.ReadPID(path); err != nil || pid != 4242 {
		t.Fatalf("ReadPID = %d, %v", pid, err)
	}
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := daemonctl.ReadPID(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestProcessAlive(t *testing.T) {
	if !daemonctl.ProcessAlive(os.Getpid()) {
		t.Fatal("current process should be alive")
	}
	if daemonctl.ProcessAlive(0) || daemonctl.ProcessAlive(-1) {
		t.Fatal("non-positive pids are never alive")
	}
}

func TestForceKillRefusesSelf(t *testing.T) {
	dir := t.TempDir()
	if _, err := daemonctl.ForceKillProcess(filepath.Join(dir, "mia.pid"), "", os.Getpid()); err == nil {
		t.Fatal("expected refusal to kill the current process")
	}
}

func TestDialWithoutDaemon(t *testing.T) {
	_, err := daemonctl.Dial(filepath.Join(t.TempDir(), "mia.sock"))
	if !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("Dial err = %v, want ErrDaemonNotRunning", err)
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if err := daemonctl.Launch(" ", daemonctl.LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty executable")
	}
}
