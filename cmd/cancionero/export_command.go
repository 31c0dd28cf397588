package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	"github.com/sydlexius/cancionero/internal/artwork"
	"github.com/sydlexius/cancionero/internal/catalog"
	"github.com/sydlexius/cancionero/internal/filesystem"
)

type exportSummary struct {
	File      string `json:"file"`
	Albums    int    `json:"albums"`
	Tracks    int    `json:"tracks"`
	ArtFiles  int    `json:"art_files"`
	Directory string `json:"directory"`
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export <dir>",
		Short: "Write the catalog as an importable YAML file plus its art",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(s *session) error {
				sum, err := exportCatalog(cmd.Context(), s.engine.Store(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput {
					return writeJSON(cmd, sum)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d albums, %d tracks and %d pictures to %s\n",
					sum.Albums, sum.Tracks, sum.ArtFiles, sum.File)
				return nil
			})
		},
	}
}

// exportCatalog writes catalog.yaml into dir, with album and track pictures
// under dir/art. Pictures are named by content, so art shared by an album
// and its tracks is written once. Performers are written by name, so two
// performers sharing a name fold into one on the next import.
func exportCatalog(ctx context.Context, store *catalog.Store, dir string) (*exportSummary, error) {
	sum := &exportSummary{Directory: dir, File: filepath.Join(dir, "catalog.yaml")}
	art := &artWriter{dir: dir, written: make(map[string]bool)}

	var doc catalogFile
	err := store.InTx(ctx, func(tx *catalog.Store) error {
		performers, err := tx.ListPerformers(ctx)
		if err != nil {
			return err
		}
		names := make(map[string]string, len(performers))
		for _, p := range performers {
			names[p.ID] = p.Name
		}
		performerName := func(id string) string {
			if id == catalog.UnknownPerformerID {
				return ""
			}
			return names[id]
		}

		albums, err := tx.ListAlbums(ctx)
		if err != nil {
			return err
		}
		albumNames := make(map[string]string, len(albums))
		for _, a := range albums {
			albumNames[a.ID] = a.Name
			entry := albumEntry{Name: a.Name, Performer: performerName(a.PerformerID), Year: a.Year, Single: a.IsSingle}
			if entry.ArtFile, err = art.write(a.Art); err != nil {
				return err
			}
			doc.Albums = append(doc.Albums, entry)
		}

		tracks, err := tx.AllTracks(ctx)
		if err != nil {
			return err
		}
		sort.SliceStable(tracks, func(i, j int) bool {
			if tracks[i].CarrierRef != tracks[j].CarrierRef {
				return tracks[i].CarrierRef < tracks[j].CarrierRef
			}
			return tracks[i].Position < tracks[j].Position
		})
		for _, t := range tracks {
			entry := trackEntry{
				Kind:      string(t.Kind),
				Carrier:   t.CarrierRef,
				Position:  t.Position,
				Title:     t.Title,
				Performer: performerName(t.PerformerID),
				Album:     albumNames[t.AlbumID],
				Original:  t.IsOriginal,
				Cover:     t.IsCover && t.OriginalPerformerName == "",
				CoverOf:   t.OriginalPerformerName,
				Asset:     t.AssetPath,
				Link:      t.ExternalLink,
			}
			if entry.ArtFile, err = art.write(t.Art); err != nil {
				return err
			}
			doc.Tracks = append(doc.Tracks, entry)
		}
		sum.Albums = len(doc.Albums)
		sum.Tracks = len(doc.Tracks)
		sum.ArtFiles = len(art.written)
		return nil
	})
	if err != nil {
		return nil, err
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("encoding catalog: %w", err)
	}
	if err := filesystem.WriteFileAtomic(sum.File, data, 0o600); err != nil {
		return nil, fmt.Errorf("writing catalog: %w", err)
	}
	return sum, nil
}

type artWriter struct {
	dir     string
	written map[string]bool
}

// write stores one picture under dir/art and returns its path relative to
// dir. No picture means no file.
func (w *artWriter) write(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	sum := blake2b.Sum256(data)
	rel := filepath.Join("art", hex.EncodeToString(sum[:16])+artExtension(artwork.DetectFormat(data)))
	if w.written[rel] {
		return rel, nil
	}
	if err := filesystem.WriteFileAtomic(filepath.Join(w.dir, rel), data, 0o600); err != nil {
		return "", fmt.Errorf("writing %s: %w", rel, err)
	}
	w.written[rel] = true
	return rel, nil
}

func artExtension(format string) string {
	switch format {
	case "":
		return ".bin"
	case artwork.FormatJPEG:
		return ".jpg"
	default:
		return "." + format
	}
}
