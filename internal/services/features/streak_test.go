package features

import (
	"testing"

	"RateCast/internal/domain/models"
)

func TestCountStreakUpDownFlat(t *testing.T) {
	U, D, F := models.Up, models.Down, models.Flat
	signals := []models.Direction{F, U, U, D, U, F, F, U, U, U}

	cases := []struct {
		name    string
		tracked models.Direction
		want    []int
	}{
		{"up", U, []int{0, 1, 2, 0, 1, 0, 0, 1, 2, 3}},
		{"down", D, []int{0, 0, 0, 1, 0, 0, 0, 0, 0, 0}},
	}
	for _, tc := range cases {
		got := CountStreak(signals, tc.tracked)
		if len(got) != len(tc.want) {
			t.Fatalf("%s: len %d, want %d", tc.name, len(got), len(tc.want))
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("%s: at %d got %d, want %d", tc.name, i, got[i], tc.want[i])
			}
		}
	}
}

func TestCountStreakNeverNegative(t *testing.T) {
	got := CountStreak([]models.Direction{models.Down, models.Flat, models.Down}, models.Up)
	for i, v := range got {
		if v != 0 {
			t.Fatalf("at %d expected 0, got %d", i, v)
		}
	}
}

func TestCountStreakEmpty(t *testing.T) {
	if got := CountStreak(nil, models.Up); len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
}

func TestDirectionsFirstIsFlat(t *testing.T) {
	hist := series("x", 2.50, 2.51, 2.51, 2.49)
	dirs := Directions(hist)
	want := []models.Direction{models.Flat, models.Up, models.Flat, models.Down}
	for i := range want {
		if dirs[i] != want[i] {
			t.Fatalf("at %d got %s, want %s", i, dirs[i], want[i])
		}
	}
}
