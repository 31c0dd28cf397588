package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sydlexius/cancionero/internal/backup"
)

func newBackupCommand(ctx *commandContext) *cobra.Command {
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Take, list and prune catalog snapshots",
	}
	backupCmd.AddCommand(newBackupCreateCommand(ctx))
	backupCmd.AddCommand(newBackupListCommand(ctx))
	backupCmd.AddCommand(newBackupPruneCommand(ctx))
	backupCmd.AddCommand(newBackupDeleteCommand(ctx))
	return backupCmd
}

func newBackupCreateCommand(ctx *commandContext) *cobra.Command {
	var prune bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Write a snapshot of the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(s *session) error {
				svc := s.backups()
				snap, err := svc.Backup(cmd.Context(), "manual")
				if err != nil {
					return err
				}
				if prune {
					if _, err := svc.Prune(); err != nil {
						return err
					}
				}
				return ctx.emit(cmd, snap, []string{"Filename", "Bytes"},
					[][]string{{snap.Filename, strconv.FormatInt(snap.Size, 10)}}, alignLeft, alignRight)
			})
		},
	}
	cmd.Flags().BoolVar(&prune, "prune", true, "Apply the retention policy after writing the snapshot")
	return cmd
}

func newBackupListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(s *session) error {
				snaps, err := s.backups().List()
				if err != nil {
					return err
				}
				if snaps == nil {
					snaps = []backup.Snapshot{}
				}
				rows := make([][]string, 0, len(snaps))
				for _, snap := range snaps {
					rows = append(rows, []string{
						snap.Filename,
						snap.CreatedAt.Format(time.RFC3339),
						strconv.FormatInt(snap.Size, 10),
					})
				}
				return ctx.emit(cmd, snaps, []string{"Filename", "Created", "Bytes"}, rows, alignLeft, alignLeft, alignRight)
			})
		},
	}
}

func newBackupPruneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete snapshots outside the retention policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(s *session) error {
				removed, err := s.backups().Prune()
				if err != nil {
					return err
				}
				if ctx.jsonOutput {
					if removed == nil {
						removed = []string{}
					}
					return writeJSON(cmd, map[string][]string{"removed": removed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d snapshots removed\n", len(removed))
				return nil
			})
		},
	}
}

func newBackupDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <filename>",
		Short: "Delete one snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(s *session) error {
				if err := s.backups().Delete(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}
