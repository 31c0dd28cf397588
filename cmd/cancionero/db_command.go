package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sydlexius/cancionero/internal/catalog"
)

func newDBCommand(ctx *commandContext) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect and maintain the catalog database",
	}
	dbCmd.AddCommand(newDBStatusCommand(ctx))
	dbCmd.AddCommand(newDBCheckCommand(ctx))
	dbCmd.AddCommand(newDBOptimizeCommand(ctx))
	return dbCmd
}

func newDBStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show database size and row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(s *session) error {
				st, err := s.maintenance().Status(cmd.Context())
				if err != nil {
					return err
				}
				rows := [][]string{
					{"schema version", strconv.FormatInt(st.SchemaVersion, 10)},
					{"performers", strconv.Itoa(st.Performers)},
					{"albums", strconv.Itoa(st.Albums)},
					{"tape tracks", strconv.Itoa(st.TapeTracks)},
					{"disc tracks", strconv.Itoa(st.DiscTracks)},
					{"database bytes", strconv.FormatInt(st.DBFileSize, 10)},
					{"wal bytes", strconv.FormatInt(st.WALFileSize, 10)},
					{"pages", strconv.FormatInt(st.PageCount, 10)},
				}
				return ctx.emit(cmd, st, []string{"Item", "Value"}, rows, alignLeft, alignRight)
			})
		},
	}
}

func newDBCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run SQLite integrity and foreign key checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(s *session) error {
				res, err := s.maintenance().Check(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput {
					if err := writeJSON(cmd, res); err != nil {
						return err
					}
				} else {
					for _, line := range append(res.Integrity, res.ForeignKeys...) {
						fmt.Fprintln(cmd.OutOrStdout(), line)
					}
				}
				if !res.OK() {
					return fmt.Errorf("%w: database check found %d problems",
						catalog.ErrStorage, len(res.Integrity)+len(res.ForeignKeys))
				}
				if !ctx.jsonOutput {
					fmt.Fprintln(cmd.OutOrStdout(), "ok")
				}
				return nil
			})
		},
	}
}

func newDBOptimizeCommand(ctx *commandContext) *cobra.Command {
	var vacuum bool
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Refresh query planner statistics and checkpoint the WAL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(s *session) error {
				svc := s.maintenance()
				if err := svc.Optimize(cmd.Context()); err != nil {
					return err
				}
				if vacuum {
					if err := svc.Vacuum(cmd.Context()); err != nil {
						return err
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), "done")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&vacuum, "vacuum", false, "Also rebuild the database file")
	return cmd
}
