package inherit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sydlexius/cancionero/internal/artwork"
	"github.com/sydlexius/cancionero/internal/catalog"
)

// ResolveArt returns the picture to display for a track, or nil when it has
// none. Sources are tried in order: art embedded in the track's audio asset,
// its resolved album's art, its own uploaded art. A cover that has none of
// these borrows the art of the best matching original.
func (r *Resolver) ResolveArt(ctx context.Context, trackID string) (*artwork.Art, error) {
	t, err := r.store.FindTrack(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", catalog.ErrStorage, err)
	}
	if t == nil {
		return nil, nil
	}
	return r.resolveArt(ctx, t, map[catalog.TrackRef]bool{}, 0)
}

func (r *Resolver) resolveArt(ctx context.Context, t *catalog.Track, visited map[catalog.TrackRef]bool, depth int) (*artwork.Art, error) {
	visited[t.Ref()] = true

	if data := r.embedded(t); len(data) > 0 {
		a := artwork.Describe(data, artwork.SourceEmbedded)
		a.TrackID = t.ID
		return a, nil
	}

	albumID, err := r.ResolveAlbum(ctx, t)
	if err != nil {
		return nil, err
	}
	if albumID != "" {
		album, err := r.store.GetAlbum(ctx, albumID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", catalog.ErrStorage, err)
		}
		if album != nil && len(album.Art) > 0 {
			a := artwork.Describe(album.Art, artwork.SourceAlbum)
			a.TrackID = t.ID
			a.AlbumID = album.ID
			return a, nil
		}
	}

	if len(t.Art) > 0 {
		a := artwork.Describe(t.Art, artwork.SourceTrack)
		a.TrackID = t.ID
		return a, nil
	}

	if !t.IsCover || depth >= maxCoverDepth {
		return nil, nil
	}
	orig, err := r.original(ctx, t, visited)
	if err != nil || orig == nil {
		return nil, err
	}
	r.logger.Debug("following cover to original for art",
		slog.String("track_id", t.ID),
		slog.String("original_id", orig.ID))
	return r.resolveArt(ctx, orig, visited, depth+1)
}

// embedded reads the picture of the track's audio asset through the cache.
// Read failures are logged and treated as no picture.
func (r *Resolver) embedded(t *catalog.Track) []byte {
	if r.cache == nil || t.AssetPath == "" {
		return nil
	}
	data, err := r.cache.Picture(t.AssetPath)
	if err != nil {
		r.logger.Warn("reading embedded art",
			slog.String("track_id", t.ID),
			slog.String("path", t.AssetPath),
			slog.Any("error", err))
		return nil
	}
	return data
}

// original picks the track a cover borrows art from: same title, performed
// by the credited original performer or flagged original, not yet visited.
func (r *Resolver) original(ctx context.Context, t *catalog.Track, visited map[catalog.TrackRef]bool) (*catalog.Track, error) {
	cands, err := r.candidates(ctx, t, r.order.Kinds(t.Kind))
	if err != nil {
		return nil, err
	}
	for i := range cands {
		if !visited[cands[i].Ref()] {
			return &cands[i], nil
		}
	}
	return nil, nil
}
