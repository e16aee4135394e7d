// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// UnknownGroup is the signature of records without a subject title.
const UnknownGroup = "Unknown"

const fallbackGroupLen = 50

// SpeciesGroup derives a species-group signature from a free-text subject
// title: the first capitalized word longer than one character followed by
// the next word with trailing ",.;" removed (genus and species for
// binomial names). A capitalized final word stands alone. Titles with a
// single word or no capitalized word fall back to their first 50
// characters.
//
// This is a text heuristic, not a taxonomy lookup.
func SpeciesGroup(title string) string {
	if title == "" {
		return UnknownGroup
	}

	words := strings.Fields(title)
	if len(words) >= 2 {
		for i, w := range words {
			first, _ := utf8.DecodeRuneInString(w)
			if !unicode.IsUpper(first) || utf8.RuneCountInString(w) <= 1 {
				continue
			}
			if i+1 < len(words) {
				return w + " " + strings.TrimRight(words[i+1], ",.;")
			}
			return w
		}
	}

	if r := []rune(title); len(r) > fallbackGroupLen {
		return string(r[:fallbackGroupLen])
	}
	return title
}
