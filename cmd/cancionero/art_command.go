package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sydlexius/cancionero/internal/catalog"
	"github.com/sydlexius/cancionero/internal/filesystem"
)

func newArtCommand(ctx *commandContext) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "art <track-id>",
		Short: "Resolve the cover art displayed for a track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(s *session) error {
				a, err := s.engine.ResolveCoverArt(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if a == nil {
					return fmt.Errorf("%w: no art for track %s", catalog.ErrNotFound, args[0])
				}
				if out != "" {
					if err := filesystem.WriteFileAtomic(out, a.Data, 0o600); err != nil {
						return fmt.Errorf("writing art: %w", err)
					}
				}
				return ctx.emit(cmd, a, []string{"Source", "From track", "Album", "Format", "Size", "Bytes"},
					[][]string{{
						string(a.Source), a.TrackID, a.AlbumID, a.Format,
						fmt.Sprintf("%dx%d", a.Width, a.Height), strconv.Itoa(len(a.Data)),
					}}, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the picture bytes to this file")
	return cmd
}

func newSyncAlbumsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-albums",
		Short: "Store inherited albums on every track still missing one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(s *session) error {
				rows, err := s.engine.SyncInheritedAlbums(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput {
					return writeJSON(cmd, map[string]int{"rows_updated": rows})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d tracks updated\n", rows)
				return nil
			})
		},
	}
}
