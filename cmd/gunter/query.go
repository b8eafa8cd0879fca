package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gunter/internal/app"
	"gunter/internal/recommend"
)

func newQueryCmd() *cobra.Command {
	var (
		destination string
		timeout     time.Duration
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "query <usecase>",
		Short: "Evaluate a use case now and print the recommendation",
		Long: "Evaluates one of " + strings.Join([]string{
			recommend.MorningRoutineID, recommend.LunchBreakID,
			recommend.PersonalTrainerID, recommend.TravelPlanningID,
		}, ", ") + " without scheduling anything.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(flagConfig, app.WithLogLevel("error"))
			if err != nil {
				return err
			}
			defer func() { _ = a.Stop(context.Background(), app.StopAppStop) }()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			v, err := a.Query(ctx, args[0], destination)
			if err != nil {
				return err
			}
			if !asJSON {
				if v.Failed {
					return errors.New(v.Message)
				}
				fmt.Fprintln(cmd.OutOrStdout(), v.Message)
				return nil
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		},
	}
	cmd.Flags().StringVar(&destination, "destination", "", "station id for travel-planning (random when empty)")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "overall deadline")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full view as JSON")
	return cmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := app.CheckConfig(flagConfig); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "config ok:", flagConfig)
			return nil
		},
	}
}
