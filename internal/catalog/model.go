package catalog

import (
	"fmt"
	"time"
)

// CarrierKind identifies the physical partition a track lives in.
type CarrierKind string

// Carrier kinds. Each has its own track table.
const (
	KindTape CarrierKind = "tape"
	KindDisc CarrierKind = "disc"
)

// Kinds lists every carrier kind in storage order.
var Kinds = []CarrierKind{KindTape, KindDisc}

// ParseKind validates a carrier kind string.
func ParseKind(s string) (CarrierKind, error) {
	switch CarrierKind(s) {
	case KindTape, KindDisc:
		return CarrierKind(s), nil
	}
	return "", fmt.Errorf("%w: unknown carrier kind %q", ErrInvalidArgument, s)
}

// Other returns the opposite carrier kind.
func (k CarrierKind) Other() CarrierKind {
	if k == KindTape {
		return KindDisc
	}
	return KindTape
}

// Table maps a kind to its track table. Callers build SQL only from this
// switch, never from user input.
func (k CarrierKind) Table() string {
	if k == KindTape {
		return "tape_tracks"
	}
	return "disc_tracks"
}

// UnknownPerformerID is the sentinel performer that receives the tracks of
// deleted performers. It is seeded by the schema and never removed.
const UnknownPerformerID = "unknown"

// Track is one recorded performance on a carrier.
type Track struct {
	ID                    string      `json:"id"`
	Kind                  CarrierKind `json:"kind"`
	Title                 string      `json:"title"`
	PerformerID           string      `json:"performer_id"`
	PerformerName         string      `json:"performer_name"`
	CarrierRef            string      `json:"carrier_ref"`
	Position              int         `json:"position"`
	AlbumID               string      `json:"album_id,omitempty"`
	IsCover               bool        `json:"is_cover"`
	IsOriginal            bool        `json:"is_original"`
	OriginalPerformerName string      `json:"original_performer_name,omitempty"`
	Art                   []byte      `json:"-"`
	AssetPath             string      `json:"asset_path,omitempty"`
	ExternalLink          string      `json:"external_link,omitempty"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

// Ref returns the partition-qualified identity of the track.
func (t *Track) Ref() TrackRef {
	return TrackRef{Kind: t.Kind, ID: t.ID}
}

// Classification returns the originality state encoded in the track flags.
func (t *Track) Classification() Classification {
	switch {
	case t.IsOriginal:
		return Original()
	case t.IsCover:
		return CoverOf(t.OriginalPerformerName)
	default:
		return Unclassified()
	}
}

// TrackRef identifies a track across both partitions.
type TrackRef struct {
	Kind CarrierKind `json:"kind"`
	ID   string      `json:"id"`
}

// Performer is a credited artist or band.
type Performer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Photo     []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Album groups tracks under a performer, optionally with cover art.
type Album struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	PerformerID string    `json:"performer_id"`
	Year        int       `json:"year,omitempty"`
	Art         []byte    `json:"-"`
	IsSingle    bool      `json:"is_single"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// State enumerates the originality states of a track.
type State string

// Originality states.
const (
	StateUnclassified State = "unclassified"
	StateOriginal     State = "original"
	StateCover        State = "cover"
)

// Classification is the originality of a track. OriginalPerformer is set
// only for covers and holds a performer name, not an id.
type Classification struct {
	State             State  `json:"state"`
	OriginalPerformer string `json:"original_performer,omitempty"`
}

// Unclassified is the state of a track nobody has ruled on.
func Unclassified() Classification { return Classification{State: StateUnclassified} }

// Original marks the canonical performance of a title.
func Original() Classification { return Classification{State: StateOriginal} }

// CoverOf marks a performance of a title whose original is by performerName.
func CoverOf(performerName string) Classification {
	return Classification{State: StateCover, OriginalPerformer: performerName}
}

// flags encodes the classification into the stored columns. An original
// never points at another performer.
func (c Classification) flags() (isCover, isOriginal bool, originalName string) {
	switch c.State {
	case StateOriginal:
		return false, true, ""
	case StateCover:
		return true, false, c.OriginalPerformer
	default:
		return false, false, ""
	}
}
