package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"home-voice/internal/application"
	"home-voice/internal/domain"
)

func newSendCmd(load loader) *cobra.Command {
	var (
		debug  bool
		userID string
	)

	cmd := &cobra.Command{
		Use:   "send [batch.json]",
		Short: "Dispatch a command batch from a file or stdin and print the results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readBatch(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			batch, err := domain.ParseBatch(raw)
			if err != nil {
				return err
			}

			cfg, logger, err := load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.client.SendCommands(cmd.Context(), batch, application.SendOptions{
				Debug:  debug,
				UserID: userID,
			})
			if err != nil {
				return fmt.Errorf("sending commands: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "include request details in results")
	cmd.Flags().StringVar(&userID, "user", "", "user id for calendar and automation functions")
	return cmd
}

func readBatch(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}
	return data, nil
}
