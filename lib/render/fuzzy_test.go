// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"slices"
	"testing"

	"github.com/charmbracelet/x/ansi"
)

func TestFuzzyRankEmptyQuery(t *testing.T) {
	matches := FuzzyRank("", []string{"b", "a", "c"})
	if len(matches) != 3 {
		t.Fatalf("expected every candidate, got %d", len(matches))
	}
	for i, match := range matches {
		if match.Index != i {
			t.Errorf("match %d: Index = %d, want input order", i, match.Index)
		}
	}
}

func TestFuzzyRankFiltersAndOrders(t *testing.T) {
	candidates := []string{"random", "general", "engineering", "gen"}
	matches := FuzzyRank("gen", candidates)

	var names []string
	for _, match := range matches {
		names = append(names, candidates[match.Index])
	}
	if slices.Contains(names, "random") {
		t.Errorf("non-matching candidate returned: %v", names)
	}
	if len(names) == 0 || names[0] != "gen" {
		t.Errorf("exact short match should rank first, got %v", names)
	}
	if !slices.Contains(names, "engineering") {
		t.Errorf("subsequence match missing: %v", names)
	}
}

func TestFuzzyRankPositions(t *testing.T) {
	matches := FuzzyRank("gl", []string{"general"})
	if len(matches) != 1 {
		t.Fatalf("expected one match, got %d", len(matches))
	}
	positions := matches[0].Positions
	if len(positions) != 2 || positions[0] != 0 || positions[1] != 6 {
		t.Errorf("positions = %v, want [0 6]", positions)
	}
}

func TestFuzzyRankSmartCase(t *testing.T) {
	candidates := []string{"General", "general"}
	if got := len(FuzzyRank("gen", candidates)); got != 2 {
		t.Errorf("lower-case query should ignore case, matched %d", got)
	}
	matches := FuzzyRank("Gen", candidates)
	if len(matches) != 1 || matches[0].Index != 0 {
		t.Errorf("upper-case query should match case, got %+v", matches)
	}
}

func TestHighlight(t *testing.T) {
	got := Highlight("general", []int{0, 6}, DefaultTheme)
	if ansi.Strip(got) != "general" {
		t.Errorf("Highlight changed visible text: %q", ansi.Strip(got))
	}
	if got == "general" {
		t.Error("Highlight did not style matched runes")
	}
	if Highlight("plain", nil, DefaultTheme) != "plain" {
		t.Error("Highlight without positions should return input unchanged")
	}
}
