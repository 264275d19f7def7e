package daemon_test

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"mia/internal/capture"
	"mia/internal/config"
	"mia/internal/daemon"
	"mia/internal/logging"
	"mia/internal/media"
	"mia/internal/message"
	"mia/internal/testsupport"
)

func newWorker(t *testing.T, cfg *config.Config, sink *testsupport.RecordingSink) *capture.Worker {
	t.Helper()
	return capture.New(capture.Options{
		Acquirer:    testsupport.NewFakeAcquirer(2 * time.Millisecond),
		Resolver:    testsupport.FakeResolver{},
		Encoder:     &testsupport.FakeEncoder{},
		Sink:        sink,
		SideChannel: testsupport.MustOpenStore(t, cfg),
		Logger:      logging.NewNop(),
	})
}

func newDaemon(t *testing.T, cfg *config.Config, sink *testsupport.RecordingSink) *daemon.Daemon {
	t.Helper()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	d, err := daemon.New(cfg, newWorker(t, cfg, sink), logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

func TestDaemonLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg, testsupport.NewRecordingSink())

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := d.Status()
	if !status.Running || status.Session.State != capture.StateIdle {
		t.Fatalf("unexpected status: %+v", status)
	}
	data, err := os.ReadFile(cfg.PIDPath())
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("pid file = %q", data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	d.Stop(ctx)
	if d.Status().Running {
		t.Fatal("daemon still running after Stop")
	}
	if _, err := os.Stat(cfg.PIDPath()); !os.IsNotExist(err) {
		t.Fatalf("pid file left behind: %v", err)
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg, testsupport.NewRecordingSink())
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	second := newDaemon(t, cfg, testsupport.NewRecordingSink())
	if err := second.Start(context.Background()); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("second Start err = %v, want ErrAlreadyRunning", err)
	}
}

func TestDaemonStopDrainsRecording(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	sink := testsupport.NewRecordingSink()
	d := newDaemon(t, cfg, sink)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	start := message.StartRecording{TabHandle: media.NewHandle(media.KindTab, "tab.monitor")}
	if err := d.Worker().Deliver(context.Background(), start); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for d.Status().Session.State != capture.StateRecording {
		if time.Now().After(deadline) {
			t.Fatal("worker never reached recording")
		}
		time.Sleep(2 * time.Millisecond)
	}

	d.Close()
	if len(sink.Artifacts()) != 1 {
		t.Fatalf("artifacts = %d, want 1 after drain", len(sink.Artifacts()))
	}
}

func TestDaemonShutdownRequest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg, testsupport.NewRecordingSink())
	d.RequestShutdown()
	d.RequestShutdown()
	select {
	case <-d.ShutdownRequested():
	default:
		t.Fatal("shutdown channel not closed")
	}
}
