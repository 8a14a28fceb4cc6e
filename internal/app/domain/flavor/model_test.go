package flavor

import "testing"

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"Mint Chocolate-Chip!":   "mint chocolate chip",
		"  MINT   chocolate chip": "mint chocolate chip",
		"Crème Brûlée":           "crème brûlée",
		"":                       "",
	}
	for in, want := range cases {
		if got := NormalizeName(in); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSummarize(t *testing.T) {
	entries := []LogEntry{
		{Log: Log{FlavorID: "f1", ShopID: "s1", Rating: 5}, Category: "chocolate"},
		{Log: Log{FlavorID: "f1", ShopID: "s1", Rating: 3}, Category: "chocolate"},
		{Log: Log{FlavorID: "f2", ShopID: "s2", Rating: 4}, Category: "chocolate"},
		{Log: Log{FlavorID: "f3", ShopID: "s2", Rating: 2}, Category: "fruit"},
	}
	act := Summarize(entries)
	if act.TotalLogs != 4 || act.UniqueFlavors != 3 || act.UniqueShops != 2 {
		t.Fatalf("unexpected counts %+v", act)
	}
	if act.AverageRating != 3.5 || act.HighRatings != 2 {
		t.Fatalf("unexpected ratings %+v", act)
	}
	if act.Categories["chocolate"] != 2 || act.Categories["fruit"] != 1 {
		t.Fatalf("categories = %v", act.Categories)
	}
	if !ValidCategory("sorbet") || ValidCategory("pizza") {
		t.Fatal("ValidCategory mismatch")
	}
}
