package main

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"arcpay/apps/arcpay/internal/amount"
	"arcpay/apps/arcpay/internal/chains"
	"arcpay/apps/arcpay/internal/config"
	"arcpay/apps/arcpay/internal/errs"
	"arcpay/apps/arcpay/internal/model"
	"arcpay/apps/arcpay/internal/repository"
)

type recurringInput struct {
	Owner         string
	CustodyWallet string
	Recipient     string
	Amount        string
	Cadence       string
	To            string
	FirstDue      string
}

// buildRecurringTransfer validates the input the same way a one-shot transfer is validated.
// An empty FirstDue makes the transfer due immediately.
func buildRecurringTransfer(in recurringInput, now time.Time) (*model.RecurringTransfer, error) {
	const op = "create recurring transfer"

	if strings.TrimSpace(in.Owner) == "" {
		return nil, errs.Validation(op, "owner is required")
	}
	for field, addr := range map[string]string{"custody wallet": in.CustodyWallet, "recipient": in.Recipient} {
		if !common.IsHexAddress(addr) || common.HexToAddress(addr) == (common.Address{}) {
			return nil, errs.Validation(op, "invalid %s address %q", field, addr)
		}
	}
	if _, err := amount.Parse(in.Amount); err != nil {
		return nil, err
	}
	cadence, err := model.ParseCadence(in.Cadence)
	if err != nil {
		return nil, errs.Wrap(errs.KindValidation, op, err, "invalid cadence")
	}
	destination, err := chains.ParseKey(in.To)
	if err != nil {
		return nil, err
	}

	nextDue := now
	if in.FirstDue != "" {
		nextDue, err = time.Parse(time.RFC3339, in.FirstDue)
		if err != nil {
			return nil, errs.Validation(op, "first due time must be RFC3339, got %q", in.FirstDue)
		}
	}

	return &model.RecurringTransfer{
		Owner:            strings.TrimSpace(in.Owner),
		CustodyWallet:    common.HexToAddress(in.CustodyWallet).Hex(),
		Recipient:        common.HexToAddress(in.Recipient).Hex(),
		Amount:           strings.TrimSpace(in.Amount),
		Cadence:          cadence,
		DestinationChain: string(destination),
		Status:           model.RecurringActive,
		NextDueAt:        nextDue.UTC(),
	}, nil
}

func withTransfers(ctx context.Context, fn func(repo *repository.RecurringTransferRepository) error) error {
	dbURL, err := config.LoadDatabaseURL()
	if err != nil {
		return err
	}
	db, err := openDatabase(ctx, dbURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(repository.NewRecurringTransferRepository(db, logger))
}

func init() {
	recurringCmd := &cobra.Command{
		Use:   "recurring",
		Short: "Manage recurring transfers",
	}

	var in recurringInput
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Schedule a recurring transfer funded from a custody wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			transfer, err := buildRecurringTransfer(in, time.Now())
			if err != nil {
				return err
			}
			return withTransfers(cmd.Context(), func(repo *repository.RecurringTransferRepository) error {
				if err := repo.Create(cmd.Context(), transfer); err != nil {
					return err
				}
				logger.Info("Created recurring transfer", zap.String("transfer_id", transfer.ID), zap.Time("next_due_at", transfer.NextDueAt))
				return printJSON(transfer)
			})
		},
	}
	createCmd.Flags().StringVar(&in.Owner, "owner", "", "Owner of the transfer")
	createCmd.Flags().StringVar(&in.CustodyWallet, "custody-wallet", "", "Custody contract funding each run")
	createCmd.Flags().StringVar(&in.Recipient, "recipient", "", "Recipient address")
	createCmd.Flags().StringVar(&in.Amount, "amount", "", "Amount in USDC per run")
	createCmd.Flags().StringVar(&in.Cadence, "cadence", string(model.CadenceMonthly), "minute|daily|weekly|monthly|yearly")
	createCmd.Flags().StringVar(&in.To, "to", "", "Destination chain")
	createCmd.Flags().StringVar(&in.FirstDue, "first-due", "", "First run time (RFC3339); defaults to now")
	for _, name := range []string{"owner", "custody-wallet", "recipient", "amount", "to"} {
		_ = createCmd.MarkFlagRequired(name)
	}

	var listOwner string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List an owner's recurring transfers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTransfers(cmd.Context(), func(repo *repository.RecurringTransferRepository) error {
				transfers, err := repo.ListByOwner(cmd.Context(), listOwner)
				if err != nil {
					return err
				}
				return printJSON(transfers)
			})
		},
	}
	listCmd.Flags().StringVar(&listOwner, "owner", "", "Owner of the transfers")
	_ = listCmd.MarkFlagRequired("owner")

	setStatus := func(use, short string, status model.RecurringStatus) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <transfer-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withTransfers(cmd.Context(), func(repo *repository.RecurringTransferRepository) error {
					if err := repo.SetStatus(cmd.Context(), args[0], status); err != nil {
						return err
					}
					logger.Info("Updated recurring transfer", zap.String("transfer_id", args[0]), zap.String("status", string(status)))
					return nil
				})
			},
		}
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <transfer-id>",
		Short: "Delete a recurring transfer; its executions stay in the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTransfers(cmd.Context(), func(repo *repository.RecurringTransferRepository) error {
				if err := repo.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				logger.Info("Deleted recurring transfer", zap.String("transfer_id", args[0]))
				return nil
			})
		},
	}

	recurringCmd.AddCommand(
		createCmd,
		listCmd,
		setStatus("pause", "Stop a recurring transfer from firing", model.RecurringPaused),
		setStatus("activate", "Resume firing a paused recurring transfer", model.RecurringActive),
		deleteCmd,
	)
	rootCmd.AddCommand(recurringCmd)
}
