package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/CreditLedger/internal/pkg/allocation"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var autoFix bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Allocate, retry, audit and advance next allocation dates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.locked(cmd, func(c context.Context) (any, error) {
				return ctx.scheduler().RunMonthly(c, autoFix), nil
			})
		},
	}
	cmd.Flags().BoolVar(&autoFix, "auto-fix", false, "Book missing allocations found by the audit")
	return cmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Retry failed allocations that are due",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.locked(cmd, func(c context.Context) (any, error) {
				return ctx.scheduler().Retry(c)
			})
		},
	}
}

func newDetectCommand(ctx *commandContext) *cobra.Command {
	var (
		autoFix bool
		months  int
	)
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Compare expected and booked allocations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.locked(cmd, func(c context.Context) (any, error) {
				return ctx.scheduler().Audit(c, autoFix, months)
			})
		},
	}
	cmd.Flags().BoolVar(&autoFix, "auto-fix", false, "Book missing allocations")
	cmd.Flags().IntVar(&months, "months", allocation.DefaultAuditMonths, "Trailing months to inspect")
	return cmd
}

func newNextDatesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "next-dates",
		Short: "Advance next allocation dates that are due",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.locked(cmd, func(c context.Context) (any, error) {
				n, err := ctx.scheduler().UpdateNextDates(c)
				if err != nil {
					return nil, err
				}
				return map[string]int{"updated_next_dates": n}, nil
			})
		},
	}
}
