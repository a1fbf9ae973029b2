package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDevicesCmd(load loader) *cobra.Command {
	var functions bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Print the device catalog sent to the language model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, a.client.GenerateDevicesPromptFragment())
			if functions {
				fmt.Fprintln(out, a.functions.FunctionsPromptFragment())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&functions, "functions", false, "also print the simple function catalog")
	return cmd
}
