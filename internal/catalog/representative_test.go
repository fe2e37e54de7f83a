package catalog

import "testing"

func TestRepresentativeScore(t *testing.T) {
	tests := []struct {
		name string
		m    Match
		want int
	}{
		{"bare", Match{Source: "musicbrainz"}, 1},
		{"external link", Match{Source: "musicbrainz", ExternalURL: "u"}, 3},
		{"named album link", Match{Source: "spotify", AlbumURL: "a"}, 7},
		{"other album link", Match{Source: "deezer", AlbumURL: "a"}, 3},
		{"artwork", Match{Source: "deezer", ArtworkURL: "i"}, 9},
		{"everything", Match{Source: "spotify", ArtworkURL: "i", AlbumURL: "a", ExternalURL: "u"}, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RepresentativeScore(tt.m, "spotify"); got != tt.want {
				t.Errorf("score = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPickRepresentative_Precedence(t *testing.T) {
	linked := Match{ID: "1", Source: "musicbrainz", ExternalID: "a"}
	external := Match{ID: "2", Source: "wikipedia", ExternalID: "b", ExternalURL: "u"}
	namedAlbum := Match{ID: "3", Source: "spotify", ExternalID: "c", AlbumURL: "a"}
	artwork := Match{ID: "4", Source: "deezer", ExternalID: "d", ArtworkURL: "i"}

	cases := []struct {
		in   []Match
		want string
	}{
		{[]Match{linked}, "1"},
		{[]Match{linked, external}, "2"},
		{[]Match{external, namedAlbum, linked}, "3"},
		{[]Match{namedAlbum, artwork, external, linked}, "4"},
	}
	for _, c := range cases {
		if got := PickRepresentative(c.in, "spotify"); got == nil || got.ID != c.want {
			t.Errorf("PickRepresentative = %+v, want id %s", got, c.want)
		}
	}
}

func TestPickRepresentative_StableTies(t *testing.T) {
	a := Match{ID: "a", Source: "spotify", ExternalID: "2", ArtworkURL: "i"}
	b := Match{ID: "b", Source: "deezer", ExternalID: "9", ArtworkURL: "i"}
	c := Match{ID: "c", Source: "deezer", ExternalID: "1", ArtworkURL: "i"}

	for _, order := range [][]Match{{a, b, c}, {c, b, a}, {b, a, c}} {
		got := PickRepresentative(order, "")
		if got.ID != "c" {
			t.Errorf("order %v picked %s, want c", []string{order[0].ID, order[1].ID, order[2].ID}, got.ID)
		}
	}
	if PickRepresentative(nil, "spotify") != nil {
		t.Error("no matches should yield nil")
	}
}
