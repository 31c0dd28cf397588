package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sydlexius/cancionero/internal/catalog"
)

func newMarkOriginalCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mark-original <group-id> <performer-id>",
		Short: "Make a performer the original of a group; everyone else becomes a cover",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(s *session) error {
				rows, err := s.engine.MarkOriginal(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if ctx.jsonOutput {
					return writeJSON(cmd, map[string]int{"rows_updated": rows})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d tracks reclassified\n", rows)
				return nil
			})
		},
	}
}

func newCanonicalCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "canonical <group-id>",
		Short: "Print the single original performer of a group, failing when ambiguous",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(s *session) error {
				p, err := s.engine.RequireCanonical(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if p == nil {
					return fmt.Errorf("%w: original performer vanished", catalog.ErrNotFound)
				}
				if ctx.jsonOutput {
					return writeJSON(cmd, p)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p.ID, p.Name)
				return nil
			})
		},
	}
}

func newSuggestCommand(ctx *commandContext) *cobra.Command {
	var exclude string
	cmd := &cobra.Command{
		Use:   "suggest <title>",
		Short: "Rank performers already holding a title as cover originals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(s *session) error {
				sugg, err := s.engine.SuggestCoverOriginals(cmd.Context(), args[0], exclude)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(sugg))
				for _, sg := range sugg {
					rows = append(rows, []string{sg.PerformerID, sg.Name, yesNo(sg.IsOriginal), strconv.Itoa(sg.Copies)})
				}
				return ctx.emit(cmd, sugg, []string{"Performer", "Name", "Original", "Copies"},
					rows, alignLeft, alignLeft, alignLeft, alignRight)
			})
		},
	}
	cmd.Flags().StringVar(&exclude, "exclude", "", "Performer id to leave out")
	return cmd
}

func newTrackCommand(ctx *commandContext) *cobra.Command {
	trackCmd := &cobra.Command{
		Use:   "track",
		Short: "Inspect and edit single tracks",
	}
	trackCmd.AddCommand(newTrackShowCommand(ctx))
	trackCmd.AddCommand(newTrackSetOriginalCommand(ctx))
	return trackCmd
}

func newTrackShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <track-id>",
		Short: "Show a track with its resolved album",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(s *session) error {
				t, err := s.engine.Store().FindTrack(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if t == nil {
					return fmt.Errorf("%w: track %s", catalog.ErrNotFound, args[0])
				}
				album, err := s.engine.ResolveAlbum(cmd.Context(), t.ID)
				if err != nil {
					return err
				}
				view := struct {
					*catalog.Track
					ResolvedAlbum *catalog.Album `json:"resolved_album,omitempty"`
				}{t, album}
				albumName := ""
				if album != nil {
					albumName = album.Name
				}
				return ctx.emit(cmd, view, []string{"Field", "Value"}, [][]string{
					{"id", t.ID},
					{"carrier", string(t.Kind) + ":" + t.CarrierRef + "#" + strconv.Itoa(t.Position)},
					{"title", t.Title},
					{"performer", t.PerformerName},
					{"classification", describeClassification(t.Classification())},
					{"album", albumName},
					{"asset", t.AssetPath},
				})
			})
		},
	}
}

func newTrackSetOriginalCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set-original <track-id>",
		Short: "Flag a track as original and reclassify the rest of its title group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(s *session) error {
				t, err := s.engine.Store().FindTrack(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if t == nil {
					return fmt.Errorf("%w: track %s", catalog.ErrNotFound, args[0])
				}
				t.IsOriginal = true
				t.IsCover = false
				t.OriginalPerformerName = ""
				rows, err := s.engine.SaveTrackEdit(cmd.Context(), t)
				if err != nil {
					return err
				}
				if ctx.jsonOutput {
					return writeJSON(cmd, map[string]int{"rows_updated": rows})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d tracks reclassified\n", rows)
				return nil
			})
		},
	}
}
