package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newPerformerCommand(ctx *commandContext) *cobra.Command {
	performerCmd := &cobra.Command{
		Use:   "performer",
		Short: "List, rename, merge and delete performers",
	}
	performerCmd.AddCommand(newPerformerListCommand(ctx))
	performerCmd.AddCommand(newPerformerRenameCommand(ctx))
	performerCmd.AddCommand(newPerformerUnifyCommand(ctx))
	performerCmd.AddCommand(newPerformerDeleteCommand(ctx))
	return performerCmd
}

func newPerformerListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List performers with their track counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(s *session) error {
				svc := s.engine.Performers()
				performers, err := svc.List(cmd.Context())
				if err != nil {
					return err
				}
				type row struct {
					ID     string `json:"id"`
					Name   string `json:"name"`
					Tracks int    `json:"tracks"`
				}
				out := make([]row, 0, len(performers))
				rows := make([][]string, 0, len(performers))
				for _, p := range performers {
					n, err := svc.TrackCount(cmd.Context(), p.ID)
					if err != nil {
						return err
					}
					out = append(out, row{ID: p.ID, Name: p.Name, Tracks: n})
					rows = append(rows, []string{p.ID, p.Name, strconv.Itoa(n)})
				}
				return ctx.emit(cmd, out, []string{"ID", "Name", "Tracks"}, rows, alignLeft, alignLeft, alignRight)
			})
		},
	}
}

func newPerformerRenameCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <performer-id> <new-name>",
		Short: "Rename a performer, merging it into an existing one with the same name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(s *session) error {
				if err := s.snapshotBeforeMerge(cmd.Context(), "rename"); err != nil {
					return err
				}
				p, err := s.engine.RenamePerformer(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if ctx.jsonOutput {
					return writeJSON(cmd, p)
				}
				if p.ID != args[0] {
					fmt.Fprintf(cmd.OutOrStdout(), "merged into %s (%s)\n", p.ID, p.Name)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "renamed to %s\n", p.Name)
				return nil
			})
		},
	}
}

func newPerformerUnifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unify <source-id> <target-id>",
		Short: "Merge the source performer into the target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(s *session) error {
				if err := s.snapshotBeforeMerge(cmd.Context(), "unify"); err != nil {
					return err
				}
				res, err := s.engine.UnifyPerformers(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if ctx.jsonOutput {
					return writeJSON(cmd, res)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "moved %d tracks, %d albums, %d credits, %d memberships, %d genres\n",
					res.Tracks, res.Albums, res.Credits, res.Memberships, res.Genres)
				return nil
			})
		},
	}
}

func newPerformerDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <performer-id>",
		Short: "Delete a performer, handing its tracks to the unknown performer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(s *session) error {
				if err := s.snapshotBeforeMerge(cmd.Context(), "delete"); err != nil {
					return err
				}
				if err := s.engine.DeletePerformer(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}
