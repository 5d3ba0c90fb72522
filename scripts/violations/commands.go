package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"venty/internal/agreement"
	"venty/internal/config"
	"venty/internal/storage"
	"venty/internal/violation"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

const commandTimeout = 30 * time.Second

type configLoader func() (*config.Config, error)

func newRootCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "violations",
		Short:         "Manage off-platform violation counters",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newStatusCmd(load))
	cmd.AddCommand(newResetCmd(load))
	cmd.AddCommand(newHashPasswordCmd())
	return cmd
}

func newStatusCmd(load configLoader) *cobra.Command {
	var channel string

	cmd := &cobra.Command{
		Use:   "status <user-id>...",
		Short: "Show the violation counter of one or more users",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCounter(cmd, load, func(ctx context.Context, counter *violation.Counter) error {
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, userID := range args {
					rec, err := counter.Status(ctx, userID, channel)
					if err != nil {
						return err
					}
					if err := enc.Encode(rec); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "", "variant (unified or exchange) when counters are kept per channel")
	return cmd
}

func newResetCmd(load configLoader) *cobra.Command {
	var channel string

	cmd := &cobra.Command{
		Use:   "reset <user-id>...",
		Short: "Clear the violation counter of one or more users, lifting suspensions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCounter(cmd, load, func(ctx context.Context, counter *violation.Counter) error {
				out := cmd.OutOrStdout()
				for _, userID := range args {
					before, err := counter.Status(ctx, userID, channel)
					if err != nil {
						return err
					}
					if err := counter.Reset(ctx, userID, channel); err != nil {
						return err
					}
					fmt.Fprintf(out, "%s: reset %s (was %d)\n", userID, before.Key, before.Count)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "", "variant (unified or exchange) when counters are kept per channel")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), cost)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}

	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}

func withCounter(cmd *cobra.Command, load configLoader, fn func(ctx context.Context, counter *violation.Counter) error) error {
	channel, _ := cmd.Flags().GetString("channel")
	if channel != "" && !agreement.Variant(channel).IsValid() {
		return fmt.Errorf("unknown channel %q", channel)
	}

	cfg, err := load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	backends, err := storage.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer backends.Close()

	if backends.ViolationKind == storage.KindMemory {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: violation store is in-memory; counters of a running server are not visible")
	}
	return fn(ctx, violation.NewCounter(backends.Violations, cfg.Violations.CounterOptions()))
}
