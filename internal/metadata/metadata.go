package metadata

// Track is the canonical description of a requested recording.
// It is resolved once from the pasted link and is immutable for the
// lifetime of the request; every provider match is judged against it.
type Track struct {
	Name        string
	Artist      string
	Album       string
	AlbumArtist string
	TrackNumber int
	TotalTracks int
	DiscNumber  int
	ReleaseDate string
	DurationMS  int
	ISRC        string // empty when the catalog has none
	SpotifyURL  string
	ArtworkURL  string
}

// DurationWithin reports whether a candidate duration (ms) is within
// tolerance of the canonical duration.
func (t Track) DurationWithin(candidateMS, toleranceMS int) bool {
	diff := t.DurationMS - candidateMS
	if diff < 0 {
		diff = -diff
	}
	return diff <= toleranceMS
}
