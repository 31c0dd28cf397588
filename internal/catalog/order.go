package catalog

import "fmt"

// SearchOrder decides which partition is searched first when resolving
// inherited albums and art across carriers.
type SearchOrder string

// Search orders.
const (
	// SearchSameFirst searches the track's own partition, then the other.
	SearchSameFirst SearchOrder = "same-first"
	// SearchTapeFirst always searches tapes before discs.
	SearchTapeFirst SearchOrder = "tape-first"
)

// ParseSearchOrder validates a configured search order. Empty means
// SearchSameFirst.
func ParseSearchOrder(s string) (SearchOrder, error) {
	switch SearchOrder(s) {
	case "", SearchSameFirst:
		return SearchSameFirst, nil
	case SearchTapeFirst:
		return SearchTapeFirst, nil
	}
	return "", fmt.Errorf("unknown carrier search order %q", s)
}

// Kinds returns the partitions to search for a track of the given kind.
func (o SearchOrder) Kinds(from CarrierKind) []CarrierKind {
	if o == SearchTapeFirst {
		return []CarrierKind{KindTape, KindDisc}
	}
	return []CarrierKind{from, from.Other()}
}
