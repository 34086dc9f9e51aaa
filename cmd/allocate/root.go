package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/CreditLedger/internal/pkg/allocation"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/bootstrap"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/database"
	"github.com/ManuelReschke/CreditLedger/internal/pkg/env"
)

// errLocked is returned when another invocation holds the run lock.
var errLocked = errors.New("another allocate run is in progress")

// commandContext carries flags and the lazily built service graph.
type commandContext struct {
	lockPath string
	services *bootstrap.Services
	connect  func() *bootstrap.Services
}

func newCommandContext() *commandContext {
	return &commandContext{
		connect: func() *bootstrap.Services {
			env.SetupEnvFile()
			database.SetupDatabase()
			// Cron runs never call Stripe.
			return bootstrap.NewServices(database.GetDB(), bootstrap.NewPublisher(), nil)
		},
	}
}

func (c *commandContext) scheduler() *allocation.Scheduler {
	if c.services == nil {
		c.services = c.connect()
	}
	return c.services.Scheduler
}

func (c *commandContext) close() {
	if c.services != nil {
		_ = c.services.Publisher.Close()
	}
}

// locked runs fn while holding the host-wide run lock. Overlapping cron
// invocations exit with errLocked instead of waiting.
func (c *commandContext) locked(cmd *cobra.Command, fn func(ctx context.Context) (any, error)) error {
	release, ok, err := acquireLock(c.lockPath)
	if err != nil {
		return err
	}
	if !ok {
		return errLocked
	}
	defer release()
	defer c.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := fn(ctx)
	if err != nil {
		return err
	}
	return writeJSON(cmd, out)
}

func newRootCommand() *cobra.Command {
	return newRootCommandWith(newCommandContext())
}

func newRootCommandWith(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "allocate",
		Short:         "Monthly credit allocation jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.lockPath, "lock-file",
		filepath.Join(os.TempDir(), "creditledger-allocate.lock"), "Path of the run lock file")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newRetryCommand(ctx))
	rootCmd.AddCommand(newDetectCommand(ctx))
	rootCmd.AddCommand(newNextDatesCommand(ctx))

	return rootCmd
}
