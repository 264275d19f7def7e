package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mia/internal/ipc"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Ask the capture daemon whether the microphone can be opened",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				result, err := client.TestMicrophone(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if result.HasAccess {
					fmt.Fprintln(out, "Microphone available")
					return nil
				}
				fmt.Fprintln(out, "Microphone unavailable")
				fmt.Fprintln(out, "Grant access with 'mia permission grant' and check capture.mic_source.")
				return nil
			})
		},
	}
}
