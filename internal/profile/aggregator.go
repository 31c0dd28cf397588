// Package profile summarizes a duplicate group per performer.
package profile

import (
	"context"
	"fmt"
	"sort"

	"github.com/sydlexius/cancionero/internal/catalog"
	"github.com/sydlexius/cancionero/internal/duplicate"
	"github.com/sydlexius/cancionero/internal/textnorm"
)

// Instance locates one copy of the title.
type Instance struct {
	TrackID    string              `json:"track_id"`
	Kind       catalog.CarrierKind `json:"kind"`
	CarrierRef string              `json:"carrier_ref"`
	Position   int                 `json:"position"`
	IsCover    bool                `json:"is_cover"`
	IsOriginal bool                `json:"is_original"`
}

// Performer aggregates every copy one performer holds of the title.
// Performer records whose names differ only in case, accents or spacing
// are folded into one entry.
type Performer struct {
	Key          string     `json:"key"`
	Name         string     `json:"name"`
	PerformerIDs []string   `json:"performer_ids"`
	Copies       int        `json:"copies"`
	IsOriginal   bool       `json:"is_original"`
	ExternalLink string     `json:"external_link,omitempty"`
	AlbumID      string     `json:"album_id,omitempty"`
	AlbumName    string     `json:"album_name,omitempty"`
	Instances    []Instance `json:"instances"`
}

// Profile is the per-performer view of one duplicate group.
type Profile struct {
	GroupID    string      `json:"group_id"`
	Title      string      `json:"title"`
	Performers []Performer `json:"performers"`
}

// Aggregator builds group profiles.
type Aggregator struct {
	store *catalog.Store
}

// NewAggregator creates an aggregator. The store is used to look up album
// names.
func NewAggregator(store *catalog.Store) *Aggregator {
	return &Aggregator{store: store}
}

// Build aggregates a group. Performers flagged original come first, then
// those holding more copies; remaining ties are broken by name.
func (a *Aggregator) Build(ctx context.Context, g *duplicate.Group) (*Profile, error) {
	byKey := make(map[string]*Performer)
	var order []string
	for _, t := range g.Members {
		key := textnorm.NameKey(t.PerformerName)
		p, ok := byKey[key]
		if !ok {
			p = &Performer{Key: key, Name: t.PerformerName}
			byKey[key] = p
			order = append(order, key)
		}
		if !containsID(p.PerformerIDs, t.PerformerID) {
			p.PerformerIDs = append(p.PerformerIDs, t.PerformerID)
		}
		p.Copies++
		if t.IsOriginal {
			p.IsOriginal = true
		}
		if p.ExternalLink == "" {
			p.ExternalLink = t.ExternalLink
		}
		if p.AlbumID == "" {
			p.AlbumID = t.AlbumID
		}
		p.Instances = append(p.Instances, Instance{
			TrackID:    t.ID,
			Kind:       t.Kind,
			CarrierRef: t.CarrierRef,
			Position:   t.Position,
			IsCover:    t.IsCover,
			IsOriginal: t.IsOriginal,
		})
	}

	prof := &Profile{GroupID: g.ID, Title: g.Title, Performers: make([]Performer, 0, len(order))}
	for _, key := range order {
		p := byKey[key]
		if p.AlbumID != "" {
			album, err := a.store.GetAlbum(ctx, p.AlbumID)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", catalog.ErrStorage, err)
			}
			if album != nil {
				p.AlbumName = album.Name
			}
		}
		prof.Performers = append(prof.Performers, *p)
	}

	sort.SliceStable(prof.Performers, func(i, j int) bool {
		pi, pj := prof.Performers[i], prof.Performers[j]
		if pi.IsOriginal != pj.IsOriginal {
			return pi.IsOriginal
		}
		if pi.Copies != pj.Copies {
			return pi.Copies > pj.Copies
		}
		return pi.Key < pj.Key
	})
	return prof, nil
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
