package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sydlexius/cancionero/internal/catalog"
	"github.com/sydlexius/cancionero/internal/textnorm"
)

// catalogFile is the YAML layout read by import and written by export.
// Performers are referenced by name and created on first use.
type catalogFile struct {
	Albums []albumEntry `yaml:"albums"`
	Tracks []trackEntry `yaml:"tracks"`
}

type albumEntry struct {
	Name      string `yaml:"name"`
	Performer string `yaml:"performer"`
	Year      int    `yaml:"year,omitempty"`
	Single    bool   `yaml:"single,omitempty"`
	ArtFile   string `yaml:"art_file,omitempty"`
}

type trackEntry struct {
	Kind      string `yaml:"kind"`
	Carrier   string `yaml:"carrier,omitempty"`
	Position  int    `yaml:"position,omitempty"`
	Title     string `yaml:"title"`
	Performer string `yaml:"performer"`
	Album     string `yaml:"album,omitempty"`
	Original  bool   `yaml:"original,omitempty"`
	Cover     bool   `yaml:"cover,omitempty"`
	CoverOf   string `yaml:"cover_of,omitempty"`
	ArtFile   string `yaml:"art_file,omitempty"`
	Asset     string `yaml:"asset,omitempty"`
	Link      string `yaml:"link,omitempty"`
}

type importSummary struct {
	Performers int `json:"performers"`
	Albums     int `json:"albums"`
	Tracks     int `json:"tracks"`
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <catalog.yaml>",
		Short: "Load performers, albums and tracks from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			var doc catalogFile
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("%w: parsing %s: %w", catalog.ErrInvalidArgument, args[0], err)
			}
			return ctx.withEngine(cmd, func(s *session) error {
				sum, err := importCatalog(cmd.Context(), s.engine.Store(), &doc, filepath.Dir(args[0]))
				if err != nil {
					return err
				}
				if ctx.jsonOutput {
					return writeJSON(cmd, sum)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d performers, %d albums, %d tracks\n",
					sum.Performers, sum.Albums, sum.Tracks)
				return nil
			})
		},
	}
}

// importCatalog writes doc in one transaction. Relative art paths are
// resolved against baseDir.
func importCatalog(ctx context.Context, store *catalog.Store, doc *catalogFile, baseDir string) (*importSummary, error) {
	sum := &importSummary{}
	err := store.InTx(ctx, func(tx *catalog.Store) error {
		existing, err := tx.ListPerformers(ctx)
		if err != nil {
			return err
		}
		performers := make(map[string]string, len(existing))
		for _, p := range existing {
			performers[textnorm.NameKey(p.Name)] = p.ID
		}
		performerID := func(name string) (string, error) {
			if name == "" {
				return catalog.UnknownPerformerID, nil
			}
			key := textnorm.NameKey(name)
			if id, ok := performers[key]; ok {
				return id, nil
			}
			p := &catalog.Performer{Name: name}
			if err := tx.CreatePerformer(ctx, p); err != nil {
				return "", err
			}
			performers[key] = p.ID
			sum.Performers++
			return p.ID, nil
		}

		albums := make(map[string]string)
		for _, a := range doc.Albums {
			owner, err := performerID(a.Performer)
			if err != nil {
				return err
			}
			album := &catalog.Album{Name: a.Name, PerformerID: owner, Year: a.Year, IsSingle: a.Single}
			if album.Art, err = readArtFile(baseDir, a.ArtFile); err != nil {
				return fmt.Errorf("reading art of album %q: %w", a.Name, err)
			}
			if err := tx.CreateAlbum(ctx, album); err != nil {
				return err
			}
			albums[textnorm.NameKey(a.Name)] = album.ID
			sum.Albums++
		}

		positions := make(map[string]int)
		for _, t := range doc.Tracks {
			kind, err := catalog.ParseKind(t.Kind)
			if err != nil {
				return err
			}
			pid, err := performerID(t.Performer)
			if err != nil {
				return err
			}
			carrier := t.Carrier
			if carrier == "" {
				carrier = string(kind) + "-1"
			}
			pos := t.Position
			if pos == 0 {
				pos = positions[carrier] + 1
			}
			positions[carrier] = max(positions[carrier], pos)

			track := &catalog.Track{
				Kind:         kind,
				Title:        t.Title,
				PerformerID:  pid,
				CarrierRef:   carrier,
				Position:     pos,
				IsOriginal:   t.Original,
				AssetPath:    t.Asset,
				ExternalLink: t.Link,
			}
			if (t.Cover || t.CoverOf != "") && !t.Original {
				track.IsCover = true
				track.OriginalPerformerName = t.CoverOf
			}
			if track.Art, err = readArtFile(baseDir, t.ArtFile); err != nil {
				return fmt.Errorf("reading art of track %q: %w", t.Title, err)
			}
			if t.Album != "" {
				id, ok := albums[textnorm.NameKey(t.Album)]
				if !ok {
					return fmt.Errorf("%w: track %q names unknown album %q", catalog.ErrInvalidArgument, t.Title, t.Album)
				}
				track.AlbumID = id
			}
			if err := tx.CreateTrack(ctx, track); err != nil {
				return err
			}
			sum.Tracks++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sum, nil
}

// readArtFile loads a picture named in a catalog file. Relative paths are
// resolved against baseDir; an empty name yields no art.
func readArtFile(baseDir, name string) ([]byte, error) {
	if name == "" {
		return nil, nil
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return os.ReadFile(path) //nolint:gosec // G304: path comes from the operator's catalog file
}
