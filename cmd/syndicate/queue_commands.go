package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"syndicate/internal/targets"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage publish targets",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRequeueCommand(ctx))
	queueCmd.AddCommand(newQueueCancelCommand(ctx))
	queueCmd.AddCommand(newQueueClearCompletedCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show target counts per state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *targets.Store) error {
				stats, err := store.GetStats(cmd.Context())
				if err != nil {
					return err
				}
				if stats.Total == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				var rows [][]string
				for _, state := range targets.AllStates() {
					if count := stats.ByState[state]; count > 0 {
						rows = append(rows, []string{string(state), strconv.Itoa(count)})
					}
				}
				rows = append(rows, []string{"total", strconv.Itoa(stats.Total)})
				out := renderTable([]string{"State", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var stateFlags []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List publish targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			var states []targets.State
			for _, raw := range stateFlags {
				state, ok := targets.ParseState(raw)
				if !ok {
					return fmt.Errorf("unknown state %q (known: %v)", raw, targets.AllStates())
				}
				states = append(states, state)
			}

			return ctx.withStore(func(store *targets.Store) error {
				list, err := store.List(cmd.Context(), states...)
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(list))
				for _, target := range list {
					rows = append(rows, []string{
						strconv.FormatInt(target.ID, 10),
						string(target.Platform),
						target.AccountID,
						string(target.Kind),
						string(target.State),
						strconv.Itoa(target.Attempts),
						formatNextAttempt(target),
						target.Title,
					})
				}
				out := renderTable(
					[]string{"ID", "Platform", "Account", "Kind", "State", "Attempts", "Next attempt", "Title"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&stateFlags, "state", nil, "Filter by state (repeatable)")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one target with its attempt history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTargetID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *targets.Store) error {
				target, err := store.GetByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				if target == nil {
					return fmt.Errorf("target %d not found", id)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Target %d\n", target.ID)
				fmt.Fprintf(out, "  Platform:     %s/%s (%s)\n", target.Platform, target.AccountID, target.Kind)
				fmt.Fprintf(out, "  Artifact:     %s\n", target.ArtifactPath)
				fmt.Fprintf(out, "  Title:        %s\n", target.Title)
				fmt.Fprintf(out, "  State:        %s\n", target.State)
				fmt.Fprintf(out, "  Attempts:     %d\n", target.Attempts)
				fmt.Fprintf(out, "  Fingerprint:  %s\n", target.Fingerprint)
				if target.LastErrorKind != "" {
					fmt.Fprintf(out, "  Last error:   [%s] %s\n", target.LastErrorKind, target.LastErrorMessage)
				}
				if target.NextAttemptAt != nil {
					fmt.Fprintf(out, "  Next attempt: %s\n", target.NextAttemptAt.Local().Format(time.RFC3339))
				}
				if target.ExternalID != "" {
					fmt.Fprintf(out, "  External id:  %s\n", target.ExternalID)
				}
				fmt.Fprintf(out, "  Created:      %s\n", target.CreatedAt.Local().Format(time.RFC3339))

				attempts, err := store.AttemptsFor(cmd.Context(), id)
				if err != nil {
					return err
				}
				if len(attempts) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(attempts))
				for _, rec := range attempts {
					detail := ""
					if rec.ErrorKind != "" {
						detail = fmt.Sprintf("[%s] %s", rec.ErrorKind, rec.ErrorMessage)
					}
					rows = append(rows, []string{
						strconv.Itoa(rec.Attempt),
						rec.StartedAt.Local().Format(time.RFC3339),
						rec.FinishedAt.Sub(rec.StartedAt).Round(time.Millisecond).String(),
						string(rec.Outcome),
						detail,
					})
				}
				table := renderTable(
					[]string{"Attempt", "Started", "Duration", "Outcome", "Error"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}
}

func newQueueRequeueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <id>",
		Short: "Move a manually-stuck or failed target back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTargetID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *targets.Store) error {
				if err := store.Requeue(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Target %d requeued\n", id)
				return nil
			})
		},
	}
}

func newQueueCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a waiting target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTargetID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *targets.Store) error {
				if err := store.Cancel(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Target %d cancelled\n", id)
				return nil
			})
		},
	}
}

func newQueueClearCompletedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-completed",
		Short: "Delete completed targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *targets.Store) error {
				removed, err := store.ClearCompleted(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d completed target(s)\n", removed)
				return nil
			})
		},
	}
}

func parseTargetID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid target id %q", raw)
	}
	return id, nil
}

func formatNextAttempt(target *targets.Target) string {
	if target.NextAttemptAt == nil {
		return ""
	}
	return target.NextAttemptAt.Local().Format("2006-01-02 15:04:05")
}
