package catalog

import "sort"

// Representative weights. A higher total wins.
const (
	weightArtwork      = 8
	weightNamedAlbum   = 4
	weightExternalLink = 2
	weightLinked       = 1
)

// RepresentativeScore rates how well a match can stand in for its song:
// artwork outranks an album link from the named source, which outranks any
// external link, which outranks a bare linked record.
func RepresentativeScore(m Match, namedSource string) int {
	score := weightLinked
	if m.ArtworkURL != "" {
		score += weightArtwork
	}
	if namedSource != "" && m.Source == namedSource && m.AlbumURL != "" {
		score += weightNamedAlbum
	}
	if m.ExternalURL != "" || m.AlbumURL != "" {
		score += weightExternalLink
	}
	return score
}

// PickRepresentative returns the default match for a song, or nil when
// there are none. Equal scores fall back to source name then external id so
// re-runs choose the same row.
func PickRepresentative(matches []Match, namedSource string) *Match {
	if len(matches) == 0 {
		return nil
	}
	sorted := make([]Match, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := RepresentativeScore(sorted[i], namedSource), RepresentativeScore(sorted[j], namedSource)
		if si != sj {
			return si > sj
		}
		if sorted[i].Source != sorted[j].Source {
			return sorted[i].Source < sorted[j].Source
		}
		return sorted[i].ExternalID < sorted[j].ExternalID
	})
	best := sorted[0]
	return &best
}
