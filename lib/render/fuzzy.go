// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

// Match is one candidate accepted by FuzzyRank.
type Match struct {
	// Index is the candidate's position in the input slice.
	Index int
	Score int
	// Positions are the rune offsets of the matched characters,
	// ascending.
	Positions []int
}

var algoInit sync.Once

// FuzzyRank matches query against candidates the way fzf does and
// returns the matches best first. Ties go to the shorter candidate,
// then to the earlier one. Matching ignores case unless the query has
// an upper-case letter. An empty query matches everything in input
// order.
func FuzzyRank(query string, candidates []string) []Match {
	if query == "" {
		matches := make([]Match, len(candidates))
		for i := range candidates {
			matches[i] = Match{Index: i}
		}
		return matches
	}
	algoInit.Do(func() { algo.Init("default") })

	caseSensitive := strings.IndexFunc(query, unicode.IsUpper) >= 0
	pattern := []rune(query)
	if !caseSensitive {
		pattern = []rune(strings.ToLower(query))
	}

	slab := util.MakeSlab(100*1024, 2048)
	var matches []Match
	for i, candidate := range candidates {
		chars := util.ToChars([]byte(candidate))
		result, positions := algo.FuzzyMatchV2(caseSensitive, true, true, &chars, pattern, true, slab)
		if result.Start < 0 {
			continue
		}
		match := Match{Index: i, Score: result.Score}
		if positions != nil {
			match.Positions = slices.Clone(*positions)
			slices.Sort(match.Positions)
		}
		matches = append(matches, match)
	}

	slices.SortStableFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(len(candidates[a.Index]), len(candidates[b.Index]))
	})
	return matches
}

// Highlight styles the matched runes of s.
func Highlight(s string, positions []int, theme Theme) string {
	if len(positions) == 0 {
		return s
	}
	style := newStyles().NewStyle().Foreground(theme.MatchForeground).Bold(true)
	var builder strings.Builder
	next := 0
	for i, r := range []rune(s) {
		if next < len(positions) && positions[next] == i {
			builder.WriteString(style.Render(string(r)))
			next++
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}
