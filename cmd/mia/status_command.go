package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"mia/internal/capture"
	"mia/internal/config"
	"mia/internal/controller"
	"mia/internal/ipc"
	"mia/internal/permission"
	"mia/internal/preflight"
	"mia/internal/statestore"
)

type statusReport struct {
	Daemon     daemonStatus       `json:"daemon"`
	Recording  bool               `json:"recording"`
	Indicator  string             `json:"indicator"`
	Permission permission.Status  `json:"permission"`
	Session    *capture.Snapshot  `json:"session,omitempty"`
	Checks     []preflight.Result `json:"checks,omitempty"`
}

type daemonStatus struct {
	Running   bool      `json:"running"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var watch bool
	var asJSON bool
	var checks bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recording, permission, and daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *statestore.Store) error {
				render := func(runCtx context.Context) error {
					report := collectStatus(runCtx, ctx, cfg, store, checks)
					if asJSON {
						return writeJSON(cmd, report)
					}
					fmt.Fprint(cmd.OutOrStdout(), renderStatus(report))
					return nil
				}
				if !watch {
					return render(cmd.Context())
				}
				return watchStatus(cmd, store, render)
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-render whenever the recording state changes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&checks, "checks", false, "Run preflight checks")
	return cmd
}

func collectStatus(ctx context.Context, cmdCtx *commandContext, cfg *config.Config, store *statestore.Store, checks bool) statusReport {
	var report statusReport

	if recording, err := store.CaptureRecording(ctx); err == nil {
		report.Recording = recording
	}
	if badge, err := controller.Badge(ctx, store); err == nil {
		report.Indicator = badge
	}
	report.Permission = permission.StatusPrompt
	if status, err := permission.NewGrants(store).Status(ctx); err == nil {
		report.Permission = status
	}

	client, err := ipc.Dial(cmdCtx.socketPath())
	if err != nil {
		report.Daemon.Error = "not running"
	} else {
		resp, statusErr := client.Status(ctx)
		_ = client.Close()
		if statusErr != nil {
			report.Daemon.Error = statusErr.Error()
		} else {
			report.Daemon = daemonStatus{Running: resp.Running, PID: resp.PID, StartedAt: resp.StartedAt}
			session := resp.Session
			report.Session = &session
		}
	}

	if checks {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		report.Checks = preflight.RunAll(checkCtx, cfg)
		cancel()
	}
	return report
}

func renderStatus(report statusReport) string {
	rows := [][]string{
		{"Recording", yesNo(report.Recording)},
		{"Indicator", indicatorText(report.Indicator)},
		{"Microphone Permission", label(string(report.Permission))},
	}
	daemon := "Not Running"
	if report.Daemon.Running {
		daemon = fmt.Sprintf("Running (pid %d)", report.Daemon.PID)
	} else if report.Daemon.Error != "" && report.Daemon.Error != "not running" {
		daemon = "Error: " + report.Daemon.Error
	}
	rows = append(rows, []string{"Daemon", daemon})

	if s := report.Session; s != nil {
		rows = append(rows, []string{"Session", label(string(s.State))})
		if s.State != capture.StateIdle {
			rows = append(rows,
				[]string{"Session ID", s.SessionID},
				[]string{"Meeting", dash(s.MeetingID)},
				[]string{"Microphone", yesNo(s.HasMicrophone)},
				[]string{"Buffered", strconv.Itoa(s.Bytes) + " bytes in " + strconv.Itoa(s.Chunks) + " fragments"},
			)
			if !s.StartedAt.IsZero() {
				rows = append(rows, []string{"Elapsed", time.Since(s.StartedAt).Truncate(time.Second).String()})
			}
		}
	}

	out := renderTable("Status", []string{"Item", "Value"}, rows, nil)
	if len(report.Checks) == 0 {
		return out
	}
	checkRows := make([][]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		result := "OK"
		if !check.Passed {
			result = "FAIL"
		}
		checkRows = append(checkRows, []string{label(check.Name), result, check.Detail})
	}
	return out + renderTable("Checks", []string{"Check", "Result", "Detail"}, checkRows,
		[]text.Align{text.AlignLeft, text.AlignCenter, text.AlignLeft})
}

func watchStatus(cmd *cobra.Command, store *statestore.Store, render func(context.Context) error) error {
	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	changes, err := store.Watch(runCtx)
	if err != nil {
		return fmt.Errorf("watch state store: %w", err)
	}
	if err := render(runCtx); err != nil {
		return err
	}
	for {
		select {
		case <-runCtx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			clearScreen(cmd.OutOrStdout())
			if err := render(runCtx); err != nil {
				return err
			}
		}
	}
}

func clearScreen(w io.Writer) {
	if f, ok := w.(*os.File); ok && isTerminal(f) {
		fmt.Fprint(w, "\x1b[H\x1b[2J")
		return
	}
	fmt.Fprintln(w)
}

func indicatorText(badge string) string {
	if badge == controller.BadgeIdle {
		return "off"
	}
	return badge
}

func dash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
