// Package originality decides which performance of a title is the original
// and which are covers.
//
// Classification is stored on each track as a pair of flags plus the name of
// the chosen original's performer. Every cascade rescans the whole catalog
// and rewrites the title group inside one transaction, so readers never see
// a half-classified group. Two overlapping cascades are not serialized
// beyond that: the last one to commit wins.
package originality

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/sydlexius/cancionero/internal/catalog"
	"github.com/sydlexius/cancionero/internal/duplicate"
	"github.com/sydlexius/cancionero/internal/event"
	"github.com/sydlexius/cancionero/internal/textnorm"
)

// Classifier applies original/cover decisions to title groups.
type Classifier struct {
	store   *catalog.Store
	grouper *duplicate.Grouper
	bus     *event.Bus
	logger  *slog.Logger
}

// NewClassifier creates a classifier. bus may be nil.
func NewClassifier(store *catalog.Store, grouper *duplicate.Grouper, bus *event.Bus, logger *slog.Logger) *Classifier {
	return &Classifier{
		store:   store,
		grouper: grouper,
		bus:     bus,
		logger:  logger.With("component", "originality"),
	}
}

// MarkOriginal makes performerID the original of the title group key: its
// tracks become originals, every other member becomes a cover of it. It
// returns the number of tracks rewritten.
func (c *Classifier) MarkOriginal(ctx context.Context, key, performerID string) (int, error) {
	if key == "" {
		return 0, fmt.Errorf("%w: empty group key", catalog.ErrInvalidArgument)
	}

	var rows int
	err := c.store.InTx(ctx, func(tx *catalog.Store) error {
		n, err := c.cascade(ctx, tx, key, performerID, nil)
		rows = n
		return err
	})
	if err != nil {
		return 0, err
	}

	c.logger.Info("original marked",
		slog.String("group_id", textnorm.GroupID(key)),
		slog.String("performer_id", performerID),
		slog.Int("rows", rows))
	c.bus.Publish(event.Event{
		Type: event.GroupClassified,
		Data: map[string]any{"group_id": textnorm.GroupID(key), "performer_id": performerID, "rows": rows},
	})
	return rows, nil
}

// Edit describes a saved track as seen by the classifier.
type Edit struct {
	Ref            catalog.TrackRef
	PerformerID    string
	Title          string
	MarkedOriginal bool
}

// AutoClassifyOnEdit runs the MarkOriginal cascade for a track that was
// just saved with the original flag set. The edited track is always made
// an original, even if it was a cover before. Edits without the flag are
// left alone.
func (c *Classifier) AutoClassifyOnEdit(ctx context.Context, e Edit) (int, error) {
	if !e.MarkedOriginal {
		return 0, nil
	}

	var rows int
	err := c.store.InTx(ctx, func(tx *catalog.Store) error {
		n, err := c.autoClassify(ctx, tx, e)
		rows = n
		return err
	})
	if err != nil {
		return 0, err
	}

	c.logger.Info("classification cascaded from edit",
		slog.String("track_id", e.Ref.ID),
		slog.String("performer_id", e.PerformerID),
		slog.Int("rows", rows))
	c.bus.Publish(event.Event{
		Type: event.GroupClassified,
		Data: map[string]any{"group_id": textnorm.GroupIDForTitle(e.Title), "performer_id": e.PerformerID, "rows": rows},
	})
	return rows, nil
}

// SaveTrackEdit persists an edited track and, when it carries the original
// flag, cascades the classification to its title group. Both happen in one
// transaction.
func (c *Classifier) SaveTrackEdit(ctx context.Context, t *catalog.Track) (int, error) {
	marked := t.IsOriginal
	e := Edit{Ref: t.Ref(), PerformerID: t.PerformerID, Title: t.Title, MarkedOriginal: marked}

	var rows int
	err := c.store.InTx(ctx, func(tx *catalog.Store) error {
		if err := tx.UpdateTrack(ctx, t); err != nil {
			return err
		}
		if !marked {
			return nil
		}
		n, err := c.autoClassify(ctx, tx, e)
		rows = n
		return err
	})
	if err != nil {
		return 0, err
	}
	if marked {
		c.bus.Publish(event.Event{
			Type: event.GroupClassified,
			Data: map[string]any{"group_id": textnorm.GroupIDForTitle(t.Title), "performer_id": t.PerformerID, "rows": rows},
		})
	}
	return rows, nil
}

func (c *Classifier) autoClassify(ctx context.Context, tx *catalog.Store, e Edit) (int, error) {
	if strings.TrimSpace(e.Title) == "" {
		return 0, fmt.Errorf("%w: empty title", catalog.ErrInvalidArgument)
	}
	return c.cascade(ctx, tx, textnorm.Normalize(e.Title), e.PerformerID, &e.Ref)
}

// cascade rewrites every track titled key. When edited is set, that track
// is forced to original and need not be in the group under its old title.
func (c *Classifier) cascade(ctx context.Context, tx *catalog.Store, key, performerID string, edited *catalog.TrackRef) (int, error) {
	p, err := tx.GetPerformer(ctx, performerID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", catalog.ErrStorage, err)
	}
	if p == nil {
		return 0, fmt.Errorf("%w: performer %s", catalog.ErrNotFound, performerID)
	}

	tracks, err := tx.AllTracks(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", catalog.ErrStorage, err)
	}

	var members []catalog.Track
	owned := false
	for _, t := range tracks {
		if textnorm.Normalize(t.Title) != key {
			continue
		}
		members = append(members, t)
		if t.PerformerID == performerID {
			owned = true
		}
	}
	if !owned && edited == nil {
		return 0, fmt.Errorf("%w: performer %s has no track in group %s",
			catalog.ErrNotFound, performerID, textnorm.GroupID(key))
	}

	rows := 0
	editedSeen := false
	for _, t := range members {
		want := catalog.CoverOf(p.Name)
		if t.PerformerID == performerID {
			want = catalog.Original()
		}
		if edited != nil && t.Ref() == *edited {
			want = catalog.Original()
			editedSeen = true
		}
		if err := tx.SetClassification(ctx, t.Ref(), want); err != nil {
			return 0, fmt.Errorf("%w: %w", catalog.ErrStorage, err)
		}
		rows++
	}
	if edited != nil && !editedSeen {
		if err := tx.SetClassification(ctx, *edited, catalog.Original()); err != nil {
			return 0, fmt.Errorf("%w: %w", catalog.ErrStorage, err)
		}
		rows++
	}
	return rows, nil
}

// Candidate is one performer a human may pick as the original of a group.
type Candidate struct {
	PerformerID string `json:"performer_id"`
	Name        string `json:"name"`
	Copies      int    `json:"copies"`
}

// Notification asks a human to resolve a group whose original is missing
// or contested.
type Notification struct {
	GroupID       string      `json:"group_id"`
	Title         string      `json:"title"`
	OriginalCount int         `json:"original_count"`
	Candidates    []Candidate `json:"candidates"`
}

// Ambiguities lists a notification for every duplicate group that does not
// have exactly one original performer, and publishes each on the bus.
func (c *Classifier) Ambiguities(ctx context.Context) ([]Notification, error) {
	res, err := c.grouper.List(ctx, duplicate.FilterAll)
	if err != nil {
		return nil, err
	}

	notes := []Notification{}
	for i := range res.Groups {
		g := &res.Groups[i]
		if !g.Ambiguous {
			continue
		}
		n := NotificationFor(g)
		notes = append(notes, n)
		c.bus.Publish(event.Event{
			Type: event.GroupAmbiguous,
			Data: map[string]any{
				"group_id":       n.GroupID,
				"title":          n.Title,
				"original_count": n.OriginalCount,
				"candidates":     len(n.Candidates),
			},
		})
	}

	c.logger.Debug("ambiguous groups found", slog.Int("count", len(notes)))
	return notes, nil
}

// NotificationFor builds the notification of one group: a candidate per
// distinct performer, most copies first.
func NotificationFor(g *duplicate.Group) Notification {
	byID := make(map[string]*Candidate)
	var order []string
	for _, t := range g.Members {
		cand, ok := byID[t.PerformerID]
		if !ok {
			cand = &Candidate{PerformerID: t.PerformerID, Name: t.PerformerName}
			byID[t.PerformerID] = cand
			order = append(order, t.PerformerID)
		}
		cand.Copies++
	}

	cands := make([]Candidate, 0, len(order))
	for _, id := range order {
		cands = append(cands, *byID[id])
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Copies != cands[j].Copies {
			return cands[i].Copies > cands[j].Copies
		}
		return textnorm.NameKey(cands[i].Name) < textnorm.NameKey(cands[j].Name)
	})

	return Notification{
		GroupID:       g.ID,
		Title:         g.Title,
		OriginalCount: g.OriginalCount,
		Candidates:    cands,
	}
}

// Suggestion is a performer that already holds a given title.
type Suggestion struct {
	PerformerID string `json:"performer_id"`
	Name        string `json:"name"`
	IsOriginal  bool   `json:"is_original"`
	Copies      int    `json:"copies"`
}

// SuggestCoverOriginals lists the performers already holding title, so a
// new entry can be offered as a cover of one of them. Performers flagged
// original come first, then the rest by name. excludePerformerID, usually
// the performer of the entry being created, is left out.
func (c *Classifier) SuggestCoverOriginals(ctx context.Context, title, excludePerformerID string) ([]Suggestion, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: empty title", catalog.ErrInvalidArgument)
	}
	key := textnorm.Normalize(title)

	tracks, err := c.store.AllTracks(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading tracks: %w", err)
	}

	byID := make(map[string]*Suggestion)
	var order []string
	for _, t := range tracks {
		if t.PerformerID == excludePerformerID || textnorm.Normalize(t.Title) != key {
			continue
		}
		s, ok := byID[t.PerformerID]
		if !ok {
			s = &Suggestion{PerformerID: t.PerformerID, Name: t.PerformerName}
			byID[t.PerformerID] = s
			order = append(order, t.PerformerID)
		}
		s.Copies++
		if t.IsOriginal {
			s.IsOriginal = true
		}
	}

	out := make([]Suggestion, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsOriginal != out[j].IsOriginal {
			return out[i].IsOriginal
		}
		return textnorm.NameKey(out[i].Name) < textnorm.NameKey(out[j].Name)
	})
	return out, nil
}
