package match

import (
	"testing"

	"github.com/sydlexius/refrain/internal/provider"
)

var takeFive = provider.Query{Title: "Take Five", Artist: "Dave Brubeck", Album: "Time Out"}

func TestScore_IdenticalIs100(t *testing.T) {
	s := NewScorer(ModeStrict)
	c := provider.Candidate{SourceID: "1", Title: "Take Five", Artist: "The Dave Brubeck Quartet", Album: "Time Out"}
	score, fs := s.Score(takeFive, c)
	if score != 100 {
		t.Errorf("score = %.2f, want 100", score)
	}
	if !fs.HasArtist || !fs.HasAlbum || fs.Artist != 100 || fs.Album != 100 {
		t.Errorf("fields = %+v", fs)
	}
	if ev := s.Evaluate(takeFive, c); !ev.Accepted {
		t.Errorf("identical candidate rejected: %s", ev.Reason)
	}
}

func TestScore_RenormalizesWeights(t *testing.T) {
	s := NewScorer(ModeStrict, WithSimilarity(constSim(50)))
	score, fs := s.Score(provider.Query{Title: "x"}, provider.Candidate{Title: "y", Artist: "z"})
	if score != 50 {
		t.Errorf("title-only composite = %.2f, want 50", score)
	}
	if fs.HasArtist || fs.HasAlbum {
		t.Errorf("fields missing on the query side must not be compared: %+v", fs)
	}
}

func TestEvaluate_FieldMinimumGatesComposite(t *testing.T) {
	q := provider.Query{Title: "Take Five", Artist: "Dave Brubeck"}
	c := provider.Candidate{Title: "Take Five", Artist: "Dale Brubacker"}

	strict := NewScorer(ModeStrict).Evaluate(q, c)
	if strict.Score < Strict.Composite {
		t.Fatalf("composite %.2f should clear %.0f for this case", strict.Score, Strict.Composite)
	}
	if strict.Fields.Artist >= Strict.Artist || strict.Fields.Artist < Loose.Artist {
		t.Fatalf("artist score %.2f outside the strict/loose gap", strict.Fields.Artist)
	}
	if strict.Accepted || strict.Reason != "artist below minimum" {
		t.Errorf("strict: accepted=%v reason=%q", strict.Accepted, strict.Reason)
	}

	if loose := NewScorer(ModeLoose).Evaluate(q, c); !loose.Accepted {
		t.Errorf("loose should accept, reason=%q", loose.Reason)
	}
}

func TestEvaluate_TitleThresholdByMode(t *testing.T) {
	q := provider.Query{Title: "Take Five"}
	c := provider.Candidate{Title: "Take Fiv"}

	if ev := NewScorer(ModeStrict).Evaluate(q, c); ev.Accepted || ev.Reason != "title below minimum" {
		t.Errorf("strict: accepted=%v reason=%q score=%.2f", ev.Accepted, ev.Reason, ev.Score)
	}
	if ev := NewScorer(ModeLoose).Evaluate(q, c); !ev.Accepted {
		t.Errorf("loose: rejected with %q score=%.2f", ev.Reason, ev.Score)
	}
}

func TestEvaluate_CompositeMinimum(t *testing.T) {
	p := Profile{Title: 0, Artist: 0, Album: 0, Composite: 60}
	s := NewScorer(ModeStrict, WithProfile(p), WithSimilarity(constSim(59)))
	if ev := s.Evaluate(provider.Query{Title: "a"}, provider.Candidate{Title: "b"}); ev.Accepted || ev.Reason != "composite below minimum" {
		t.Errorf("accepted=%v reason=%q", ev.Accepted, ev.Reason)
	}
	s = NewScorer(ModeStrict, WithProfile(p), WithSimilarity(constSim(60)))
	if ev := s.Evaluate(provider.Query{Title: "a"}, provider.Candidate{Title: "b"}); !ev.Accepted {
		t.Errorf("score equal to the minimum should be accepted, reason=%q", ev.Reason)
	}
}

func TestScore_VersionStrippedFallback(t *testing.T) {
	s := NewScorer(ModeStrict)
	c := provider.Candidate{Title: "Take Five (Live at Carnegie Hall)", Artist: "Dave Brubeck"}
	ev := s.Evaluate(provider.Query{Title: "Take Five", Artist: "Dave Brubeck"}, c)
	if !ev.Fields.VersionStripped || ev.Fields.Title != 100 {
		t.Errorf("fields = %+v", ev.Fields)
	}
	if !ev.Accepted {
		t.Errorf("rejected: %s", ev.Reason)
	}
}

func TestEvaluate_RequireArtist(t *testing.T) {
	q := provider.Query{Title: "Take Five", Artist: "Dave Brubeck"}
	c := provider.Candidate{Title: "Take Five"}

	if ev := NewScorer(ModeStrict).Evaluate(q, c); ev.Accepted || ev.Reason != "candidate has no artist" {
		t.Errorf("strict: accepted=%v reason=%q", ev.Accepted, ev.Reason)
	}
	if ev := NewScorer(ModeLoose).Evaluate(q, c); !ev.Accepted {
		t.Errorf("loose: rejected with %q", ev.Reason)
	}
}

func TestDecide_TieBreak(t *testing.T) {
	s := NewScorer(ModeStrict)
	q := provider.Query{Title: "Take Five"}

	plain := provider.Candidate{SourceID: "a", Title: "Take Five", Rank: 1}
	withArt := provider.Candidate{SourceID: "b", Title: "Take Five", Rank: 2, ArtworkURL: "http://img"}
	richer := provider.Candidate{SourceID: "c", Title: "Take Five", Rank: 3, ArtworkURL: "http://img", Album: "Time Out"}

	d := s.Decide(q, []provider.Candidate{plain, withArt})
	if !d.Accepted || d.Candidate.SourceID != "b" {
		t.Errorf("artwork should win, got %+v", d.Candidate)
	}

	d = s.Decide(q, []provider.Candidate{plain, withArt, richer})
	if d.Candidate.SourceID != "c" {
		t.Errorf("richer metadata should win, got %s", d.Candidate.SourceID)
	}

	first := provider.Candidate{SourceID: "z", Title: "Take Five", Rank: 1}
	second := provider.Candidate{SourceID: "y", Title: "Take Five", Rank: 2}
	d = s.Decide(q, []provider.Candidate{second, first})
	if d.Candidate.SourceID != "z" {
		t.Errorf("lower rank should win, got %s", d.Candidate.SourceID)
	}
}

func TestDecide_NoMatchIsNotAnError(t *testing.T) {
	s := NewScorer(ModeStrict)
	d := s.Decide(takeFive, nil)
	if d.Accepted || d.Candidate != nil || d.Evaluated != 0 {
		t.Errorf("empty decision = %+v", d)
	}

	d = s.Decide(takeFive, []provider.Candidate{{SourceID: "1", Title: "Blue Rondo a la Turk", Artist: "Dave Brubeck"}})
	if d.Accepted || d.Candidate != nil {
		t.Errorf("unrelated title accepted: %+v", d)
	}
	if d.Score <= 0 || d.Threshold != Strict.Composite || d.Evaluated != 1 {
		t.Errorf("rejected decision should report the best score: %+v", d)
	}
}

func TestRank_AcceptedFirst(t *testing.T) {
	s := NewScorer(ModeStrict)
	evs := s.Rank(provider.Query{Title: "Take Five"}, []provider.Candidate{
		{SourceID: "bad", Title: "Take"},
		{SourceID: "good", Title: "Take Five"},
	})
	if len(evs) != 2 || evs[0].Candidate.SourceID != "good" || !evs[0].Accepted || evs[1].Accepted {
		t.Errorf("rank order = %+v", evs)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeStrict, "STRICT": ModeStrict, "loose": ModeLoose} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("fuzzy"); err == nil {
		t.Error("expected error for unknown mode")
	}
	if ProfileFor(ModeLoose) != Loose || ProfileFor("other") != Strict {
		t.Error("ProfileFor mismatch")
	}
}

type constSim float64

func (c constSim) Ratio(string, string) float64 { return float64(c) }
