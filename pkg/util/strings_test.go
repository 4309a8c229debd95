package util

import "testing"

func TestNormalizeEntity(t *testing.T) {
	cases := map[string]string{
		"Альфа-Банк":     "alfa_bank",
		"Беларусбанк":    "belarusbank",
		"НБРБ":           "nbrb",
		" Priorbank ":    "priorbank",
		"Банк «Решение»": "bank_reshenie",
		"Bank Dabrabyt":  "bank_dabrabyt",
	}
	for in, want := range cases {
		if got := NormalizeEntity(in); got != want {
			t.Fatalf("NormalizeEntity(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseIntDefault(t *testing.T) {
	if ParseIntDefault("", 7) != 7 || ParseIntDefault("x", 7) != 7 || ParseIntDefault("3", 7) != 3 {
		t.Fatalf("unexpected parse")
	}
}
