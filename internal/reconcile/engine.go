// Package reconcile is the entry point of the catalog reconciliation
// engine. It wires duplicate detection, originality classification,
// album and art inheritance, performer unification and group profiles
// over one catalog database.
package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/sydlexius/cancionero/internal/artwork"
	"github.com/sydlexius/cancionero/internal/catalog"
	"github.com/sydlexius/cancionero/internal/duplicate"
	"github.com/sydlexius/cancionero/internal/event"
	"github.com/sydlexius/cancionero/internal/inherit"
	"github.com/sydlexius/cancionero/internal/originality"
	"github.com/sydlexius/cancionero/internal/performer"
	"github.com/sydlexius/cancionero/internal/profile"
	"github.com/sydlexius/cancionero/internal/textnorm"
)

// Options configures an Engine. Every field is optional.
type Options struct {
	Logger *slog.Logger
	// Bus receives engine events. Nil disables publishing.
	Bus *event.Bus
	// ArtReader reads pictures embedded in audio assets. Defaults to
	// artwork.FileReader.
	ArtReader artwork.Reader
	// SearchOrder decides which carrier partition album and art
	// inheritance search first.
	SearchOrder catalog.SearchOrder
}

// Engine exposes the reconciliation operations.
type Engine struct {
	store      *catalog.Store
	grouper    *duplicate.Grouper
	classifier *originality.Classifier
	resolver   *inherit.Resolver
	performers *performer.Service
	profiles   *profile.Aggregator
	cache      *artwork.Cache
	logger     *slog.Logger
}

// New creates an engine over a migrated catalog database.
func New(db *sql.DB, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reader := opts.ArtReader
	if reader == nil {
		reader = artwork.FileReader{}
	}

	store := catalog.NewStore(db)
	grouper := duplicate.NewGrouper(store, logger)
	cache := artwork.NewCache(reader, logger)
	return &Engine{
		store:      store,
		grouper:    grouper,
		classifier: originality.NewClassifier(store, grouper, opts.Bus, logger),
		resolver:   inherit.NewResolver(store, cache, opts.SearchOrder, opts.Bus, logger),
		performers: performer.NewService(db, store, opts.Bus, logger),
		profiles:   profile.NewAggregator(store),
		cache:      cache,
		logger:     logger.With("component", "engine"),
	}
}

// Store returns the catalog store the engine works on.
func (e *Engine) Store() *catalog.Store { return e.store }

// Performers returns the performer service.
func (e *Engine) Performers() *performer.Service { return e.performers }

// ArtCache returns the embedded-art cache, so callers can invalidate it.
func (e *Engine) ArtCache() *artwork.Cache { return e.cache }

// ListDuplicateGroups lists duplicate groups matching filter ("" or "all"
// for every group) plus catalog-wide statistics.
func (e *Engine) ListDuplicateGroups(ctx context.Context, filter string) (*duplicate.Result, error) {
	f, err := duplicate.ParseFilter(filter)
	if err != nil {
		return nil, err
	}
	return e.grouper.List(ctx, f)
}

// GetGroup re-resolves a group by id. Returns nil when the title no longer
// has duplicates; an unparseable id is ErrNotFound.
func (e *Engine) GetGroup(ctx context.Context, groupID string) (*duplicate.Group, error) {
	return e.grouper.Get(ctx, groupID)
}

// MarkOriginal designates performerID as the original of a group and
// returns the number of tracks rewritten.
func (e *Engine) MarkOriginal(ctx context.Context, groupID, performerID string) (int, error) {
	key, err := textnorm.ParseGroupID(groupID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", catalog.ErrNotFound, err)
	}
	return e.classifier.MarkOriginal(ctx, key, performerID)
}

// SuggestCoverOriginals ranks the performers already holding title.
func (e *Engine) SuggestCoverOriginals(ctx context.Context, title, excludePerformerID string) ([]originality.Suggestion, error) {
	return e.classifier.SuggestCoverOriginals(ctx, title, excludePerformerID)
}

// GetMultiPerformerProfile aggregates a group per performer. Returns nil
// when the group no longer exists.
func (e *Engine) GetMultiPerformerProfile(ctx context.Context, groupID string) (*profile.Profile, error) {
	g, err := e.grouper.Get(ctx, groupID)
	if err != nil || g == nil {
		return nil, err
	}
	return e.profiles.Build(ctx, g)
}

// ResolveCoverArt returns the art to display for a track, or nil.
func (e *Engine) ResolveCoverArt(ctx context.Context, trackID string) (*artwork.Art, error) {
	return e.resolver.ResolveArt(ctx, trackID)
}

// ResolveAlbum returns the direct or inherited album of a track. Returns
// nil when the track is missing or has no album.
func (e *Engine) ResolveAlbum(ctx context.Context, trackID string) (*catalog.Album, error) {
	t, err := e.store.FindTrack(ctx, trackID)
	if err != nil || t == nil {
		return nil, err
	}
	id, err := e.resolver.ResolveAlbum(ctx, t)
	if err != nil || id == "" {
		return nil, err
	}
	return e.store.GetAlbum(ctx, id)
}

// SyncInheritedAlbums persists inherited albums and returns the number of
// tracks updated. Running it again updates nothing.
func (e *Engine) SyncInheritedAlbums(ctx context.Context) (int, error) {
	return e.resolver.SyncInheritedAlbums(ctx)
}

// UnifyPerformers merges sourceID into targetID.
func (e *Engine) UnifyPerformers(ctx context.Context, sourceID, targetID string) (*performer.UnifyResult, error) {
	return e.performers.Unify(ctx, sourceID, targetID)
}

// RenamePerformer renames a performer, unifying it into an existing
// performer of the same name. The surviving performer is returned.
func (e *Engine) RenamePerformer(ctx context.Context, id, name string) (*catalog.Performer, error) {
	return e.performers.Rename(ctx, id, name)
}

// DeletePerformer removes a performer, handing its tracks to the unknown
// performer.
func (e *Engine) DeletePerformer(ctx context.Context, id string) error {
	return e.performers.Delete(ctx, id)
}

// SaveTrackEdit persists an edited track. A track saved with the original
// flag set becomes the original of its title group.
func (e *Engine) SaveTrackEdit(ctx context.Context, t *catalog.Track) (int, error) {
	return e.classifier.SaveTrackEdit(ctx, t)
}

// Ambiguities lists the groups that need a human to pick the original.
func (e *Engine) Ambiguities(ctx context.Context) ([]originality.Notification, error) {
	return e.classifier.Ambiguities(ctx)
}

// RequireCanonical returns the single performer flagged original in a
// group. A group with none or several is ErrConflict; a missing group is
// ErrNotFound.
func (e *Engine) RequireCanonical(ctx context.Context, groupID string) (*catalog.Performer, error) {
	g, err := e.grouper.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("%w: group %s", catalog.ErrNotFound, groupID)
	}
	if g.Ambiguous {
		return nil, fmt.Errorf("%w: group %q has %d original performers", catalog.ErrConflict, g.Title, g.OriginalCount)
	}
	for _, m := range g.Members {
		if m.IsOriginal {
			return e.store.GetPerformer(ctx, m.PerformerID)
		}
	}
	return nil, fmt.Errorf("%w: group %q has no original", catalog.ErrConflict, g.Title)
}
