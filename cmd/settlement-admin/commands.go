package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/quotaclub/settlement/internal/audit"
	"github.com/quotaclub/settlement/internal/settlement"
	"github.com/quotaclub/settlement/pkg/enums"
)

// errOperationFailed marks a command whose envelope reported failure. The
// envelope itself is already on stdout.
var errOperationFailed = errors.New("operation failed")

type bootstrapFunc func(ctx context.Context) (*settlement.Service, func(), error)

type app struct {
	boot    bootstrapFunc
	svc     *settlement.Service
	cleanup func()
}

// close releases what bootstrap opened. RunE failures skip cobra's post-run
// hooks, so the caller closes after Execute returns.
func (a *app) close() {
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup = nil
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "settlement-admin",
		Short: "Operator commands for the settlement ledger",
		Long: `Operator commands for the settlement ledger. Every command prints the
{success, data, error} envelope as JSON and exits non-zero when it failed.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			svc, cleanup, err := a.boot(cmd.Context())
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			a.svc, a.cleanup = svc, cleanup
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(
		a.decisionCmd("approve-tx", "Approve or reject a pending transaction"),
		a.decisionCmd("approve-loan", "Approve or reject a pending loan"),
		a.confirmPayoutCmd(),
		a.sweepCmd(),
		a.referralRetryCmd(),
		a.reserveCmd(),
		a.auditCmd(),
	)
	return root
}

func (a *app) decisionCmd(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}
			rawAction, _ := cmd.Flags().GetString("action")
			action, err := enums.ParseApprovalAction(rawAction)
			if err != nil {
				return err
			}
			actorID, err := actorFlag(cmd)
			if err != nil {
				return err
			}
			if use == "approve-tx" {
				res := a.svc.ApproveOrRejectTransaction(cmd.Context(), id, action, actorID)
				return emit(cmd.OutOrStdout(), res, res.Success)
			}
			res := a.svc.ApproveOrRejectLoan(cmd.Context(), id, action, actorID)
			return emit(cmd.OutOrStdout(), res, res.Success)
		},
	}
	cmd.Flags().String("action", "approve", "approve or reject")
	cmd.Flags().String("actor", "", "acting admin id")
	return cmd
}

func (a *app) confirmPayoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm-payout ID",
		Short: "Mark an approved withdrawal as paid out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}
			actorID, err := actorFlag(cmd)
			if err != nil {
				return err
			}
			res := a.svc.ConfirmPayout(cmd.Context(), id, actorID)
			return emit(cmd.OutOrStdout(), res, res.Success)
		},
	}
	cmd.Flags().String("actor", "", "acting admin id")
	return cmd
}

func (a *app) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "sweep liquidation|fgc",
		Short:     "Run one liquidation or guarantee fund pass now",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"liquidation", "fgc"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "liquidation" {
				res := a.svc.RunLiquidationSweep(cmd.Context())
				return emit(cmd.OutOrStdout(), res, res.Success && res.Data.Err() == nil)
			}
			res := a.svc.RunFgcSweep(cmd.Context())
			return emit(cmd.OutOrStdout(), res, res.Success && res.Data.Err() == nil)
		},
	}
}

func (a *app) referralRetryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "referral-retry",
		Short: "Pay pending referral bonuses the profit pool can now afford",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			res := a.svc.RetryPendingReferralBonuses(cmd.Context(), limit)
			return emit(cmd.OutOrStdout(), res, res.Success && res.Data.Err() == nil)
		},
	}
	cmd.Flags().Int("limit", 100, "max pending bonuses to retry")
	return cmd
}

func (a *app) reserveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reserve",
		Short: "Print every reserve bucket and the real liquidity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res := a.svc.ReserveSnapshot(cmd.Context())
			return emit(cmd.OutOrStdout(), res, res.Success)
		},
	}
}

func (a *app) auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Page through the audit trail, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			entityType, _ := flags.GetString("entity-type")
			entityID, _ := flags.GetString("entity-id")
			limit, _ := flags.GetInt("limit")
			cursor, _ := flags.GetString("cursor")
			res := a.svc.AuditTrail(cmd.Context(), audit.ListParams{
				EntityType: entityType,
				EntityID:   entityID,
				Limit:      limit,
				Cursor:     cursor,
			})
			return emit(cmd.OutOrStdout(), res, res.Success)
		},
	}
	cmd.Flags().String("entity-type", "", "transaction or loan")
	cmd.Flags().String("entity-id", "", "entity id")
	cmd.Flags().Int("limit", 0, "page size")
	cmd.Flags().String("cursor", "", "cursor from a previous page")
	return cmd
}

func actorFlag(cmd *cobra.Command) (*uuid.UUID, error) {
	raw, _ := cmd.Flags().GetString("actor")
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid actor %q: %w", raw, err)
	}
	return &id, nil
}

func emit(out io.Writer, envelope any, ok bool) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(envelope); err != nil {
		return err
	}
	if !ok {
		return errOperationFailed
	}
	return nil
}
