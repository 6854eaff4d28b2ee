package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"syndicate/internal/accounts"
	"syndicate/internal/fingerprint"
	"syndicate/internal/targets"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var (
		platformFlag   string
		accountFlag    string
		kindFlag       string
		artifactFlag   string
		titleFlag      string
		descFlag       string
		tagsFlag       []string
		visibilityFlag string
		publishAtFlag  string
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Create a publish target for an artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			platform, ok := accounts.ParsePlatform(platformFlag)
			if !ok {
				return fmt.Errorf("unknown platform %q (known: %v)", platformFlag, accounts.KnownPlatforms())
			}
			kind, ok := accounts.ParseKind(kindFlag)
			if !ok {
				return fmt.Errorf("unknown kind %q (known: long, shorts)", kindFlag)
			}
			if strings.TrimSpace(artifactFlag) == "" {
				return fmt.Errorf("--artifact is required")
			}
			artifact, err := filepath.Abs(strings.TrimSpace(artifactFlag))
			if err != nil {
				return fmt.Errorf("resolve artifact path: %w", err)
			}

			registry, err := ctx.loadRegistry()
			if err != nil {
				return err
			}
			snap := registry.Snapshot()

			accountID := strings.TrimSpace(accountFlag)
			if accountID == "" {
				resolved, ok := snap.ResolveDefault(platform, kind)
				if !ok {
					return fmt.Errorf("no %s accounts configured; add one or pass --account", platform)
				}
				accountID = resolved
			} else if _, ok := snap.Lookup(platform, accountID); !ok {
				return fmt.Errorf("account %s/%s is not configured", platform, accountID)
			}

			var publishAt *time.Time
			if strings.TrimSpace(publishAtFlag) != "" {
				parsed, err := time.Parse(time.RFC3339, publishAtFlag)
				if err != nil {
					return fmt.Errorf("parse --publish-at (want RFC 3339): %w", err)
				}
				publishAt = &parsed
			}

			return ctx.withStore(func(store *targets.Store) error {
				target, created, err := store.Enqueue(cmd.Context(), targets.NewTarget{
					Platform:     platform,
					AccountID:    accountID,
					Kind:         kind,
					ArtifactPath: artifact,
					Title:        titleFlag,
					Description:  descFlag,
					Tags:         tagsFlag,
					Visibility:   visibilityFlag,
					PublishAt:    publishAt,
					Fingerprint:  fingerprint.Compute(artifact, platform, accountID, kind),
				})
				if err != nil {
					return err
				}
				if !created {
					fmt.Fprintf(cmd.OutOrStdout(), "Already enqueued as target %d (state %s)\n", target.ID, target.State)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enqueued target %d for %s/%s (%s)\n", target.ID, platform, accountID, kind)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&platformFlag, "platform", "", "Platform family (youtube, tiktok, feed)")
	cmd.Flags().StringVar(&accountFlag, "account", "", "Account id (defaults via default_for)")
	cmd.Flags().StringVar(&kindFlag, "kind", "long", "Publish kind (long, shorts)")
	cmd.Flags().StringVar(&artifactFlag, "artifact", "", "Artifact file path")
	cmd.Flags().StringVar(&titleFlag, "title", "", "Title")
	cmd.Flags().StringVar(&descFlag, "description", "", "Description")
	cmd.Flags().StringSliceVar(&tagsFlag, "tag", nil, "Tag (repeatable)")
	cmd.Flags().StringVar(&visibilityFlag, "visibility", "private", "Visibility (public, private, unlisted)")
	cmd.Flags().StringVar(&publishAtFlag, "publish-at", "", "Scheduled publish time (RFC 3339)")
	_ = cmd.MarkFlagRequired("platform")
	_ = cmd.MarkFlagRequired("artifact")

	return cmd
}
