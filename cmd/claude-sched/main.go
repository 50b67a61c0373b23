package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/claude-sched/internal/domain"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "claude-sched",
		Short: "Scheduled automation for claude -p",
		Long: `claude-sched registers recurring Claude jobs with the operating system's
scheduler (launchd or systemd), runs them when they fire, retries or escalates
failures, and keeps an execution log and a markdown dashboard.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errors.Mark(err, domain.ErrValidation)
	})
}

// exactArgs is cobra.ExactArgs with the error classified as a validation error
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return errors.Mark(err, domain.ErrValidation)
		}
		return nil
	}
}

func maximumArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return errors.Mark(err, domain.ErrValidation)
		}
		return nil
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(writeError(os.Stderr, err))
	}
}
