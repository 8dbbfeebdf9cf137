package compose

import (
	"strings"
	"unicode"
)

func splitWords(s string) []string {
	return strings.Fields(s)
}

func normalizeWord(w string) string {
	return strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	}))
}

// highlightMask marks every headline word that is part of a whole-word,
// case-insensitive occurrence of any phrase.
func highlightMask(words, phrases []string) []bool {
	mask := make([]bool, len(words))
	norm := make([]string, len(words))
	for i, w := range words {
		norm[i] = normalizeWord(w)
	}

	for _, phrase := range phrases {
		var pw []string
		for _, w := range strings.Fields(phrase) {
			if n := normalizeWord(w); n != "" {
				pw = append(pw, n)
			}
		}
		if len(pw) == 0 || len(pw) > len(norm) {
			continue
		}
		for i := 0; i+len(pw) <= len(norm); i++ {
			match := true
			for j, p := range pw {
				if norm[i+j] != p {
					match = false
					break
				}
			}
			if match {
				for j := range pw {
					mask[i+j] = true
				}
			}
		}
	}
	return mask
}

// wrapWords greedily fills lines up to maxWidth and returns the word indices
// of each line. A single word wider than maxWidth gets its own line.
func wrapWords(words []string, maxWidth float64, measure func(string) float64) [][]int {
	var (
		lines   [][]int
		current []int
		text    string
	)
	for i, w := range words {
		candidate := w
		if len(current) > 0 {
			candidate = text + " " + w
		}
		if len(current) > 0 && measure(candidate) > maxWidth {
			lines = append(lines, current)
			current, text = []int{i}, w
			continue
		}
		current = append(current, i)
		text = candidate
	}
	if len(current) > 0 {
		lines = append(lines, current)
	}
	return lines
}
