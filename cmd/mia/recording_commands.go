package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mia/internal/config"
	"mia/internal/controller"
	"mia/internal/statestore"
)

func newRecordingCommands(ctx *commandContext) []*cobra.Command {
	var source string
	var url string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start recording tab audio and the microphone",
		Long: "Start recording. --source names the pulse source carrying the tab audio " +
			"(defaults to the monitor of the default output) and --url is the page being recorded, " +
			"used to derive the meeting identifier.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *statestore.Store) error {
				ctrl, err := ctx.newController(cmd, cfg, store)
				if err != nil {
					return err
				}
				tab := controller.Tab{ID: strings.TrimSpace(source), URL: strings.TrimSpace(url)}
				if err := ctrl.HandleStart(cmd.Context(), tab); err != nil {
					if errors.Is(err, controller.ErrTabUnavailable) {
						return fmt.Errorf("%w (check --source against 'pactl list short sources')", err)
					}
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Recording requested")
				return nil
			})
		},
	}
	startCmd.Flags().StringVar(&source, "source", "", "Pulse source carrying the tab audio")
	startCmd.Flags().StringVar(&url, "url", "", "Address of the page being recorded")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the current recording and upload it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *statestore.Store) error {
				ctrl, err := ctx.newController(cmd, cfg, store)
				if err != nil {
					return err
				}
				if err := ctrl.HandleStop(cmd.Context(), ""); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Stop requested")
				return nil
			})
		},
	}

	var recording bool
	syncCmd := &cobra.Command{
		Use:    "sync",
		Short:  "Republish the recording flag (invoked by the daemon)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *statestore.Store) error {
				ctrl, err := ctx.newController(cmd, cfg, store)
				if err != nil {
					return err
				}
				return ctrl.HandleStateSync(cmd.Context(), recording)
			})
		},
	}
	syncCmd.Flags().BoolVar(&recording, "recording", false, "Whether the capture worker is recording")

	return []*cobra.Command{startCmd, stopCmd, syncCmd}
}
