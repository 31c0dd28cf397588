// Package duplicate clusters catalog tracks that share a normalized title.
//
// Groups are never stored. A group id is a reversible encoding of the
// normalized title (see textnorm.GroupID), so any group can be recomputed
// from live data at any time.
package duplicate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/sydlexius/cancionero/internal/catalog"
	"github.com/sydlexius/cancionero/internal/textnorm"
)

// Filter selects a category of duplicate groups.
type Filter string

// Group filters.
const (
	FilterAll            Filter = ""
	FilterCrossCarrier   Filter = "cross-carrier"
	FilterSingleCarrier  Filter = "single-carrier"
	FilterWithCovers     Filter = "with-covers"
	FilterMultiPerformer Filter = "multi-performer"
)

// ParseFilter validates a filter name. "all" and "" both select every group.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(s); f {
	case FilterAll, FilterCrossCarrier, FilterSingleCarrier, FilterWithCovers, FilterMultiPerformer:
		return f, nil
	case "all":
		return FilterAll, nil
	}
	return "", fmt.Errorf("%w: unknown group filter %q", catalog.ErrInvalidArgument, s)
}

// Group is every track catalog-wide sharing one normalized title.
type Group struct {
	ID             string                `json:"id"`
	Key            string                `json:"key"`
	Title          string                `json:"title"`
	Members        []catalog.Track       `json:"members"`
	CarrierKinds   []catalog.CarrierKind `json:"carrier_kinds"`
	PerformerCount int                   `json:"performer_count"`
	HasCover       bool                  `json:"has_cover"`
	// OriginalCount is the number of distinct performers holding a track
	// flagged original.
	OriginalCount int  `json:"original_count"`
	Ambiguous     bool `json:"ambiguous"`
}

// Matches reports whether the group belongs to the filter's category.
func (g *Group) Matches(f Filter) bool {
	switch f {
	case FilterCrossCarrier:
		return len(g.CarrierKinds) > 1
	case FilterSingleCarrier:
		return len(g.CarrierKinds) == 1
	case FilterWithCovers:
		return g.HasCover
	case FilterMultiPerformer:
		return g.PerformerCount > 1
	default:
		return true
	}
}

// Stats summarizes every duplicate group in the catalog, regardless of the
// filter applied to the listing.
type Stats struct {
	Groups         int `json:"groups"`
	Instances      int `json:"instances"`
	CrossCarrier   int `json:"cross_carrier"`
	SingleCarrier  int `json:"single_carrier"`
	WithCovers     int `json:"with_covers"`
	MultiPerformer int `json:"multi_performer"`
	Ambiguous      int `json:"ambiguous"`
}

// Result is a filtered group listing plus catalog-wide statistics.
type Result struct {
	Groups []Group `json:"groups"`
	Stats  Stats   `json:"stats"`
}

// Grouper computes duplicate groups from live catalog data.
type Grouper struct {
	store  *catalog.Store
	logger *slog.Logger
}

// NewGrouper creates a grouper over the catalog store.
func NewGrouper(store *catalog.Store, logger *slog.Logger) *Grouper {
	return &Grouper{store: store, logger: logger.With("component", "duplicate-grouper")}
}

// List returns the duplicate groups matching filter, ordered by key.
func (g *Grouper) List(ctx context.Context, filter Filter) (*Result, error) {
	tracks, err := g.store.AllTracks(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading tracks: %w", err)
	}

	groups := Build(tracks)
	res := &Result{Groups: []Group{}}
	for i := range groups {
		grp := &groups[i]
		res.Stats.add(grp)
		if grp.Matches(filter) {
			res.Groups = append(res.Groups, *grp)
		}
	}

	g.logger.Debug("duplicate groups computed",
		slog.Int("tracks", len(tracks)),
		slog.Int("groups", res.Stats.Groups),
		slog.String("filter", string(filter)),
		slog.Int("matched", len(res.Groups)))
	return res, nil
}

// Get re-resolves a group by id. An unparseable id is ErrNotFound; a
// well-formed id whose title no longer has duplicates returns nil.
func (g *Grouper) Get(ctx context.Context, id string) (*Group, error) {
	key, err := textnorm.ParseGroupID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", catalog.ErrNotFound, err)
	}
	return g.ByKey(ctx, key)
}

// ByKey computes the group of one normalized title. Returns nil when fewer
// than two tracks share it.
func (g *Grouper) ByKey(ctx context.Context, key string) (*Group, error) {
	tracks, err := g.store.AllTracks(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading tracks: %w", err)
	}

	var members []catalog.Track
	for _, t := range tracks {
		if textnorm.Normalize(t.Title) == key {
			members = append(members, t)
		}
	}
	if len(members) < 2 {
		return nil, nil
	}
	grp := newGroup(key, members)
	return &grp, nil
}

// Build groups tracks by normalized title, dropping singletons.
func Build(tracks []catalog.Track) []Group {
	byKey := make(map[string][]catalog.Track)
	for _, t := range tracks {
		key := textnorm.Normalize(t.Title)
		if strings.TrimSpace(key) == "" {
			continue
		}
		byKey[key] = append(byKey[key], t)
	}

	keys := make([]string, 0, len(byKey))
	for k, members := range byKey {
		if len(members) >= 2 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	groups := make([]Group, 0, len(keys))
	for _, k := range keys {
		groups = append(groups, newGroup(k, byKey[k]))
	}
	return groups
}

func newGroup(key string, members []catalog.Track) Group {
	SortMembers(members)

	kinds := make(map[catalog.CarrierKind]bool)
	performers := make(map[string]bool)
	originals := make(map[string]bool)
	hasCover := false
	for _, t := range members {
		kinds[t.Kind] = true
		performers[t.PerformerID] = true
		if t.IsOriginal {
			originals[t.PerformerID] = true
		}
		if t.IsCover {
			hasCover = true
		}
	}

	var carrierKinds []catalog.CarrierKind
	for _, k := range catalog.Kinds {
		if kinds[k] {
			carrierKinds = append(carrierKinds, k)
		}
	}

	return Group{
		ID:             textnorm.GroupID(key),
		Key:            key,
		Title:          members[0].Title,
		Members:        members,
		CarrierKinds:   carrierKinds,
		PerformerCount: len(performers),
		HasCover:       hasCover,
		OriginalCount:  len(originals),
		Ambiguous:      len(originals) != 1,
	}
}

// SortMembers orders tracks non-covers first, then by performer name. Ties
// fall back to carrier kind and position so listings are stable.
func SortMembers(members []catalog.Track) {
	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if a.IsCover != b.IsCover {
			return !a.IsCover
		}
		if an, bn := textnorm.NameKey(a.PerformerName), textnorm.NameKey(b.PerformerName); an != bn {
			return an < bn
		}
		if a.Kind != b.Kind {
			return a.Kind > b.Kind
		}
		if a.CarrierRef != b.CarrierRef {
			return a.CarrierRef < b.CarrierRef
		}
		return a.Position < b.Position
	})
}

func (s *Stats) add(g *Group) {
	s.Groups++
	s.Instances += len(g.Members)
	if g.Matches(FilterCrossCarrier) {
		s.CrossCarrier++
	}
	if g.Matches(FilterSingleCarrier) {
		s.SingleCarrier++
	}
	if g.HasCover {
		s.WithCovers++
	}
	if g.Matches(FilterMultiPerformer) {
		s.MultiPerformer++
	}
	if g.Ambiguous {
		s.Ambiguous++
	}
}
