// Package inherit derives the effective album and displayable art of a
// track that lacks its own, following the original/cover relation across
// both carrier partitions.
package inherit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/sydlexius/cancionero/internal/artwork"
	"github.com/sydlexius/cancionero/internal/catalog"
	"github.com/sydlexius/cancionero/internal/event"
	"github.com/sydlexius/cancionero/internal/textnorm"
)

// maxCoverDepth bounds how many cover-to-original hops art resolution follows.
const maxCoverDepth = 8

// Resolver resolves inherited albums and cover art.
type Resolver struct {
	store  *catalog.Store
	cache  *artwork.Cache
	order  catalog.SearchOrder
	bus    *event.Bus
	logger *slog.Logger
}

// NewResolver creates a resolver. cache and bus may be nil; without a cache
// embedded art is never consulted.
func NewResolver(store *catalog.Store, cache *artwork.Cache, order catalog.SearchOrder, bus *event.Bus, logger *slog.Logger) *Resolver {
	if order == "" {
		order = catalog.SearchSameFirst
	}
	return &Resolver{
		store:  store,
		cache:  cache,
		order:  order,
		bus:    bus,
		logger: logger.With("component", "inherit"),
	}
}

// ResolveAlbum returns the album a track belongs to. A direct album always
// wins. Otherwise the album is taken from a matching track of the same
// title: one by the performer the track credits as original (or its own
// performer when it names none), or one flagged original. Flagged originals
// are preferred. Returns "" when nothing matches.
func (r *Resolver) ResolveAlbum(ctx context.Context, t *catalog.Track) (string, error) {
	if t.AlbumID != "" {
		return t.AlbumID, nil
	}
	cands, err := r.candidates(ctx, t, r.order.Kinds(t.Kind))
	if err != nil {
		return "", err
	}
	for _, c := range cands {
		if c.AlbumID != "" {
			return c.AlbumID, nil
		}
	}
	return "", nil
}

// candidates lists the tracks t may inherit from, searching the given
// partitions in order. Flagged originals come first; otherwise partition
// order is kept.
func (r *Resolver) candidates(ctx context.Context, t *catalog.Track, kinds []catalog.CarrierKind) ([]catalog.Track, error) {
	key := textnorm.Normalize(t.Title)
	var out []catalog.Track
	for _, kind := range kinds {
		tracks, err := r.store.ListTracks(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", catalog.ErrStorage, err)
		}
		for _, c := range tracks {
			if matches(t, key, &c) {
				out = append(out, c)
			}
		}
	}
	preferOriginals(out)
	return out, nil
}

// matches reports whether c is a source t may inherit from.
func matches(t *catalog.Track, key string, c *catalog.Track) bool {
	if c.Ref() == t.Ref() || textnorm.Normalize(c.Title) != key {
		return false
	}
	return c.IsOriginal || textnorm.NameKey(c.PerformerName) == textnorm.NameKey(sourceName(t))
}

// sourceName is the performer a track inherits from by name.
func sourceName(t *catalog.Track) string {
	if t.OriginalPerformerName != "" {
		return t.OriginalPerformerName
	}
	return t.PerformerName
}

func preferOriginals(tracks []catalog.Track) {
	sort.SliceStable(tracks, func(i, j int) bool {
		return tracks[i].IsOriginal && !tracks[j].IsOriginal
	})
}

// SyncInheritedAlbums writes the resolved album into every track still
// missing one and returns the number of tracks updated. Each round stores,
// for every such track, the album ResolveAlbum picks on the catalog as the
// round found it; rounds repeat until nothing changes, so a second call
// always updates zero rows. The whole sync is one transaction.
func (r *Resolver) SyncInheritedAlbums(ctx context.Context) (int, error) {
	total := 0
	rounds := 0
	err := r.store.InTx(ctx, func(tx *catalog.Store) error {
		for {
			rounds++
			n, err := r.syncRound(ctx, tx)
			if err != nil {
				return err
			}
			total += n
			if n == 0 {
				return nil
			}
		}
	})
	if err != nil {
		return 0, err
	}

	r.logger.Info("inherited albums synced", slog.Int("rows", total), slog.Int("rounds", rounds))
	if total > 0 {
		r.bus.Publish(event.Event{Type: event.AlbumsSynced, Data: map[string]any{"rows": total}})
	}
	return total, nil
}

// syncRound fills missing albums from one snapshot of both partitions.
// Candidates are gathered in search order and ranked the way ResolveAlbum
// ranks them.
func (r *Resolver) syncRound(ctx context.Context, tx *catalog.Store) (int, error) {
	all, err := tx.AllTracks(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", catalog.ErrStorage, err)
	}

	byKey := make(map[string]map[catalog.CarrierKind][]catalog.Track)
	for _, t := range all {
		key := textnorm.Normalize(t.Title)
		if byKey[key] == nil {
			byKey[key] = make(map[catalog.CarrierKind][]catalog.Track)
		}
		byKey[key][t.Kind] = append(byKey[key][t.Kind], t)
	}

	type fill struct {
		ref   catalog.TrackRef
		album string
	}
	var fills []fill
	for i := range all {
		t := &all[i]
		if t.AlbumID != "" {
			continue
		}
		key := textnorm.Normalize(t.Title)
		var cands []catalog.Track
		for _, kind := range r.order.Kinds(t.Kind) {
			for _, c := range byKey[key][kind] {
				if matches(t, key, &c) {
					cands = append(cands, c)
				}
			}
		}
		preferOriginals(cands)
		for _, c := range cands {
			if c.AlbumID != "" {
				fills = append(fills, fill{ref: t.Ref(), album: c.AlbumID})
				break
			}
		}
	}

	rows := 0
	for _, f := range fills {
		n, err := tx.SetAlbum(ctx, f.ref, f.album)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", catalog.ErrStorage, err)
		}
		rows += n
	}
	return rows, nil
}
