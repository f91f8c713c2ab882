package main

import (
	"fmt"

	"github.com/Veraticus/backoffice-ledger/internal/cli"
	"github.com/Veraticus/backoffice-ledger/internal/model"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Inspect and seed accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List accounts and their balances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, _, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			accounts, err := store.ListAccounts(cmd.Context())
			if err != nil {
				return err
			}
			return cli.RenderAccounts(cmd.OutOrStdout(), accounts)
		},
	})

	add := &cobra.Command{
		Use:   "add <external-id>",
		Short: "Create an account with opening balances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			currency, _ := cmd.Flags().GetString("currency")
			availableRaw, _ := cmd.Flags().GetString("available")
			blockedRaw, _ := cmd.Flags().GetString("blocked")

			available, err := decimal.NewFromString(availableRaw)
			if err != nil {
				return fmt.Errorf("invalid available balance %q: %w", availableRaw, err)
			}
			blocked, err := decimal.NewFromString(blockedRaw)
			if err != nil {
				return fmt.Errorf("invalid blocked balance %q: %w", blockedRaw, err)
			}

			store, _, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			account := &model.Account{
				ExternalID:       args[0],
				Currency:         currency,
				AvailableBalance: available,
				BlockedBalance:   blocked,
			}
			if err := store.CreateAccount(cmd.Context(), account); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created account %s (id %d)", account.ExternalID, account.ID)))
			return err
		},
	}
	add.Flags().String("currency", "USD", "ISO 4217 currency code")
	add.Flags().String("available", "0", "Opening available balance")
	add.Flags().String("blocked", "0", "Opening blocked balance")
	cmd.AddCommand(add)

	return cmd
}
