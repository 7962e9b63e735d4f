package main

import (
	"github.com/spf13/cobra"

	"arcpay/apps/arcpay/internal/chains"
	"arcpay/apps/arcpay/internal/config"
	"arcpay/apps/arcpay/internal/orchestrator"
)

func init() {
	var owner, from, to, recipient, amountArg, fundingWallet string

	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Send one transfer from the hot wallet, bridging when the chains differ",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := chains.ParseKey(from)
			if err != nil {
				return err
			}
			destination, err := chains.ParseKey(to)
			if err != nil {
				return err
			}

			cfg, err := config.NewConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			exec, err := a.orchestrator.Execute(cmd.Context(), orchestrator.Request{
				Owner:            owner,
				SourceChain:      source,
				DestinationChain: destination,
				Recipient:        recipient,
				Amount:           amountArg,
				FundingWallet:    fundingWallet,
			})
			if exec != nil {
				if printErr := printJSON(exec); printErr != nil {
					return printErr
				}
			}
			return err
		},
	}

	sendCmd.Flags().StringVar(&owner, "owner", "", "Owner the execution is recorded under")
	sendCmd.Flags().StringVar(&from, "from", string(chains.Arc), "Source chain")
	sendCmd.Flags().StringVar(&to, "to", "", "Destination chain")
	sendCmd.Flags().StringVar(&recipient, "recipient", "", "Recipient address")
	sendCmd.Flags().StringVar(&amountArg, "amount", "", "Amount in USDC, up to 6 decimals")
	sendCmd.Flags().StringVar(&fundingWallet, "funding-wallet", "", "Custody contract to draw the amount from first")
	for _, name := range []string{"owner", "to", "recipient", "amount"} {
		_ = sendCmd.MarkFlagRequired(name)
	}
	rootCmd.AddCommand(sendCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "resume <execution-id>",
		Short: "Finish a burned but unminted execution without burning again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			exec, err := a.orchestrator.Resume(cmd.Context(), args[0])
			if exec != nil {
				if printErr := printJSON(exec); printErr != nil {
					return printErr
				}
			}
			return err
		},
	})
}
