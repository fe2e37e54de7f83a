package match

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sydlexius/refrain/internal/provider"
)

// Mode names a threshold profile.
type Mode string

// Supported modes.
const (
	ModeStrict Mode = "strict"
	ModeLoose  Mode = "loose"
)

// Profile holds the per-field and composite minimums a candidate must clear.
// RequireArtist rejects candidates without an artist when the query names one.
type Profile struct {
	Title         float64
	Artist        float64
	Album         float64
	Composite     float64
	RequireArtist bool
}

// Built-in profiles.
var (
	Strict = Profile{Title: 90, Artist: 85, Album: 70, Composite: 88, RequireArtist: true}
	Loose  = Profile{Title: 75, Artist: 70, Album: 50, Composite: 75}
)

// ParseMode validates a mode name. Empty means strict.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeStrict:
		return ModeStrict, nil
	case ModeLoose:
		return ModeLoose, nil
	default:
		return "", fmt.Errorf("unknown match mode %q", s)
	}
}

// ProfileFor returns the profile for a mode.
func ProfileFor(m Mode) Profile {
	if m == ModeLoose {
		return Loose
	}
	return Strict
}

// Weights are the relative importance of each field. They are renormalized
// over the fields actually compared.
type Weights struct {
	Title  float64
	Artist float64
	Album  float64
}

// DefaultWeights weights title highest.
var DefaultWeights = Weights{Title: 0.6, Artist: 0.3, Album: 0.1}

// FieldScores records the per-field similarity of one candidate. Artist and
// Album are only meaningful when the matching Has flag is set.
type FieldScores struct {
	Title           float64 `json:"title"`
	Artist          float64 `json:"artist,omitempty"`
	Album           float64 `json:"album,omitempty"`
	HasArtist       bool    `json:"has_artist"`
	HasAlbum        bool    `json:"has_album"`
	VersionStripped bool    `json:"version_stripped,omitempty"`
}

// Evaluation is one scored candidate.
type Evaluation struct {
	Candidate provider.Candidate `json:"candidate"`
	Score     float64            `json:"score"`
	Fields    FieldScores        `json:"fields"`
	Accepted  bool               `json:"accepted"`
	Reason    string             `json:"reason,omitempty"`
}

// Decision is the outcome of matching a query against one source's
// candidates. A rejected decision is a normal outcome, not an error.
type Decision struct {
	Accepted  bool                `json:"accepted"`
	Candidate *provider.Candidate `json:"candidate,omitempty"`
	Score     float64             `json:"score"`
	Threshold float64             `json:"threshold"`
	Fields    FieldScores         `json:"fields"`
	Mode      Mode                `json:"mode"`
	Evaluated int                 `json:"evaluated"`
}

// Scorer compares candidates against a query.
type Scorer struct {
	mode    Mode
	profile Profile
	weights Weights
	sim     Similarity
}

// Option customizes a Scorer.
type Option func(*Scorer)

// WithSimilarity swaps the string similarity function.
func WithSimilarity(s Similarity) Option {
	return func(sc *Scorer) { sc.sim = s }
}

// WithProfile overrides the thresholds of the mode.
func WithProfile(p Profile) Option {
	return func(sc *Scorer) { sc.profile = p }
}

// WithWeights overrides DefaultWeights.
func WithWeights(w Weights) Option {
	return func(sc *Scorer) { sc.weights = w }
}

// NewScorer creates a Scorer for the given mode.
func NewScorer(mode Mode, opts ...Option) *Scorer {
	if mode == "" {
		mode = ModeStrict
	}
	s := &Scorer{
		mode:    mode,
		profile: ProfileFor(mode),
		weights: DefaultWeights,
		sim:     DefaultSimilarity(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Mode returns the scorer's mode.
func (s *Scorer) Mode() Mode { return s.mode }

// Profile returns the thresholds in effect.
func (s *Scorer) Profile() Profile { return s.profile }

// Score computes the weighted composite and per-field similarities.
func (s *Scorer) Score(q provider.Query, c provider.Candidate) (float64, FieldScores) {
	var fs FieldScores
	fs.Title = s.sim.Ratio(Normalize(q.Title), Normalize(c.Title))
	if fs.Title < s.profile.Title {
		if alt := s.sim.Ratio(StripVersion(q.Title), StripVersion(c.Title)); alt > fs.Title {
			fs.Title = alt
			fs.VersionStripped = true
		}
	}

	total := s.weights.Title * fs.Title
	weight := s.weights.Title

	if q.Artist != "" && c.Artist != "" {
		fs.HasArtist = true
		fs.Artist = s.sim.Ratio(NormalizeArtist(q.Artist), NormalizeArtist(c.Artist))
		total += s.weights.Artist * fs.Artist
		weight += s.weights.Artist
	}
	if q.Album != "" && c.Album != "" {
		fs.HasAlbum = true
		fs.Album = s.sim.Ratio(Normalize(q.Album), Normalize(c.Album))
		total += s.weights.Album * fs.Album
		weight += s.weights.Album
	}

	if weight == 0 {
		return 0, fs
	}
	return round2(total / weight), fs
}

// Evaluate scores c and applies the profile.
func (s *Scorer) Evaluate(q provider.Query, c provider.Candidate) Evaluation {
	score, fs := s.Score(q, c)
	ev := Evaluation{Candidate: c, Score: score, Fields: fs}
	switch {
	case fs.Title < s.profile.Title:
		ev.Reason = "title below minimum"
	case s.profile.RequireArtist && q.Artist != "" && !fs.HasArtist:
		ev.Reason = "candidate has no artist"
	case fs.HasArtist && fs.Artist < s.profile.Artist:
		ev.Reason = "artist below minimum"
	case fs.HasAlbum && fs.Album < s.profile.Album:
		ev.Reason = "album below minimum"
	case score < s.profile.Composite:
		ev.Reason = "composite below minimum"
	default:
		ev.Accepted = true
	}
	return ev
}

// Rank evaluates every candidate and orders them best first: accepted before
// rejected, then by composite score and the metadata tie-break.
func (s *Scorer) Rank(q provider.Query, cands []provider.Candidate) []Evaluation {
	evs := make([]Evaluation, len(cands))
	for i, c := range cands {
		evs[i] = s.Evaluate(q, c)
	}
	sort.SliceStable(evs, func(i, j int) bool { return better(evs[i], evs[j]) })
	return evs
}

// Decide picks the best accepted candidate, or reports no match with the
// best rejected score for observability.
func (s *Scorer) Decide(q provider.Query, cands []provider.Candidate) Decision {
	d := Decision{Threshold: s.profile.Composite, Mode: s.mode, Evaluated: len(cands)}
	evs := s.Rank(q, cands)
	if len(evs) == 0 {
		return d
	}
	top := evs[0]
	d.Score = top.Score
	d.Fields = top.Fields
	if top.Accepted {
		c := top.Candidate
		d.Accepted = true
		d.Candidate = &c
	}
	return d
}

func better(a, b Evaluation) bool {
	if a.Accepted != b.Accepted {
		return a.Accepted
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	aArt, bArt := a.Candidate.ArtworkURL != "", b.Candidate.ArtworkURL != ""
	if aArt != bArt {
		return aArt
	}
	if ra, rb := a.Candidate.Richness(), b.Candidate.Richness(); ra != rb {
		return ra > rb
	}
	if a.Candidate.Rank != b.Candidate.Rank {
		return rankKey(a.Candidate.Rank) < rankKey(b.Candidate.Rank)
	}
	return a.Candidate.SourceID < b.Candidate.SourceID
}

// rankKey sorts unranked (zero) candidates last.
func rankKey(r int) int {
	if r <= 0 {
		return math.MaxInt
	}
	return r
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
