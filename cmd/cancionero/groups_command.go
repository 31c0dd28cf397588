package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sydlexius/cancionero/internal/catalog"
	"github.com/sydlexius/cancionero/internal/duplicate"
)

func newGroupsCommand(ctx *commandContext) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "List titles held more than once across the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(s *session) error {
				res, err := s.engine.ListDuplicateGroups(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if ctx.jsonOutput {
					return writeJSON(cmd, res)
				}
				rows := make([][]string, 0, len(res.Groups))
				for _, g := range res.Groups {
					rows = append(rows, []string{
						g.ID, g.Title, strconv.Itoa(len(g.Members)), strconv.Itoa(g.PerformerCount),
						kindList(g.CarrierKinds), yesNo(g.HasCover), yesNo(g.Ambiguous),
					})
				}
				if err := ctx.emit(cmd, res,
					[]string{"Group", "Title", "Copies", "Performers", "Carriers", "Covers", "Ambiguous"},
					rows, alignLeft, alignLeft, alignRight, alignRight); err != nil {
					return err
				}
				st := res.Stats
				fmt.Fprintf(cmd.OutOrStdout(),
					"%d groups, %d instances (cross-carrier %d, single-carrier %d, with covers %d, multi-performer %d, ambiguous %d)\n",
					st.Groups, st.Instances, st.CrossCarrier, st.SingleCarrier, st.WithCovers, st.MultiPerformer, st.Ambiguous)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "all",
		"Group category: all, cross-carrier, single-carrier, with-covers, multi-performer")
	return cmd
}

func newGroupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "group <group-id>",
		Short: "Show the members of one duplicate group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(s *session) error {
				g, err := s.engine.GetGroup(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if g == nil {
					return fmt.Errorf("%w: group %s has no duplicates", catalog.ErrNotFound, args[0])
				}
				return ctx.emit(cmd, g,
					[]string{"Track", "Carrier", "Pos", "Title", "Performer", "Classification"},
					memberRows(g), alignLeft, alignLeft, alignRight)
			})
		},
	}
}

func memberRows(g *duplicate.Group) [][]string {
	rows := make([][]string, 0, len(g.Members))
	for _, m := range g.Members {
		rows = append(rows, []string{
			m.ID, string(m.Kind) + ":" + m.CarrierRef, strconv.Itoa(m.Position),
			m.Title, m.PerformerName, describeClassification(m.Classification()),
		})
	}
	return rows
}

func describeClassification(c catalog.Classification) string {
	if c.State == catalog.StateCover {
		return "cover of " + c.OriginalPerformer
	}
	return string(c.State)
}

func kindList(kinds []catalog.CarrierKind) string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return strings.Join(out, ",")
}

func newProfileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "profile <group-id>",
		Short: "Summarize a duplicate group per performer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(s *session) error {
				p, err := s.engine.GetMultiPerformerProfile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if p == nil {
					return fmt.Errorf("%w: group %s has no duplicates", catalog.ErrNotFound, args[0])
				}
				rows := make([][]string, 0, len(p.Performers))
				for _, pp := range p.Performers {
					rows = append(rows, []string{
						pp.Name, strconv.Itoa(pp.Copies), yesNo(pp.IsOriginal), pp.AlbumName, pp.ExternalLink,
					})
				}
				return ctx.emit(cmd, p, []string{"Performer", "Copies", "Original", "Album", "Link"},
					rows, alignLeft, alignRight)
			})
		},
	}
}

func newAmbiguitiesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ambiguities",
		Short: "List groups without exactly one original performer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(s *session) error {
				notes, err := s.engine.Ambiguities(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(notes))
				for _, n := range notes {
					cands := make([]string, 0, len(n.Candidates))
					for _, c := range n.Candidates {
						cands = append(cands, fmt.Sprintf("%s (%d)", c.Name, c.Copies))
					}
					rows = append(rows, []string{n.GroupID, n.Title, strconv.Itoa(n.OriginalCount), strings.Join(cands, ", ")})
				}
				return ctx.emit(cmd, notes, []string{"Group", "Title", "Originals", "Candidates"},
					rows, alignLeft, alignLeft, alignRight)
			})
		},
	}
}
