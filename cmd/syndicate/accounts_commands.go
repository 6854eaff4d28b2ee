package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"syndicate/internal/accounts"
)

func newAccountsCommand(ctx *commandContext) *cobra.Command {
	accountsCmd := &cobra.Command{
		Use:   "accounts",
		Short: "Inspect and validate configured publishing accounts",
	}

	accountsCmd.AddCommand(newAccountsValidateCommand(ctx))
	accountsCmd.AddCommand(newAccountsListCommand(ctx))

	return accountsCmd
}

func newAccountsValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check every configured account without touching any platform",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := ctx.loadRegistry()
			if err != nil {
				return err
			}
			snap := registry.Snapshot()

			statuses := snap.Validate()
			if len(statuses) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No accounts configured")
				return nil
			}

			rows := make([][]string, 0, len(statuses))
			invalid := 0
			for _, status := range statuses {
				if status.Status == accounts.StatusInvalidConfig {
					invalid++
				}
				rows = append(rows, []string{
					string(status.Account.Platform),
					status.Account.ID,
					string(status.Status),
					status.Detail,
				})
			}

			out := renderTable(
				[]string{"Platform", "Account", "Status", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), out)

			for _, warning := range snap.Warnings() {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warning)
			}
			if snap.Legacy() {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: no accounts file found; running in legacy single-account mode (%s)\n", accounts.LegacyCredentialEnv)
			}

			if invalid > 0 {
				return fmt.Errorf("%d account(s) have invalid configuration", invalid)
			}
			return nil
		},
	}
}

func newAccountsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts in declaration order with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := ctx.loadRegistry()
			if err != nil {
				return err
			}
			snap := registry.Snapshot()

			var rows [][]string
			for _, platform := range snap.Platforms() {
				for _, status := range snap.ListAccounts(platform) {
					rows = append(rows, []string{
						string(platform),
						status.Account.ID,
						status.Account.Description,
						string(status.Status),
						formatDefaults(status.Account),
					})
				}
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No accounts configured")
				return nil
			}

			out := renderTable(
				[]string{"Platform", "Account", "Description", "Status", "Default for"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func formatDefaults(account accounts.Account) string {
	if len(account.DefaultFor) == 0 {
		return ""
	}
	kinds := make([]string, 0, len(account.DefaultFor))
	for _, kind := range account.DefaultFor {
		kinds = append(kinds, string(kind))
	}
	return strings.Join(kinds, ", ")
}
