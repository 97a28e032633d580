// Package normalize turns extracted regulation text into word-frequency
// statistics keyed by stem. Pipeline, per token: lowercase, strip ASCII
// punctuation, drop stop-words, Porter2 stem, drop tokens containing a digit,
// drop tokens of length <= 3, count. Each step that changes a token records
// the change in the TransformStore so reports can recover a readable form.
package normalize

import (
	"strings"

	"github.com/kljensen/snowball/english"
)

// asciiPunctuation matches Python's string.punctuation, which the original
// normalization was defined against.
const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

type Normalizer struct {
	stop       map[string]bool
	transforms *TransformStore
}

// New builds the canonical normalizer. The transform store may be shared
// across workers; it is the only mutable state.
func New(transforms *TransformStore) *Normalizer {
	stop := make(map[string]bool, len(englishStopwords))
	for _, w := range englishStopwords {
		stop[w] = true
	}
	return &Normalizer{stop: stop, transforms: transforms}
}

// CountWords runs the pipeline over one text block. Counts are strictly
// positive; tokens filtered out are absent, not zero.
func (n *Normalizer) CountWords(text string) map[string]int {
	counts := map[string]int{}
	if text == "" {
		return counts
	}
	for _, orig := range strings.Fields(strings.ReplaceAll(text, "\n", " ")) {
		w := orig

		lower := strings.ToLower(w)
		if lower != w {
			n.transforms.Merge(lower, w)
			w = lower
		}

		stripped := stripPunctuation(w)
		if stripped != w {
			n.transforms.Merge(stripped, w)
			w = stripped
		}

		if w == "" || n.stop[w] {
			continue
		}

		stemmed := english.Stem(w, false)
		if stemmed != w {
			n.transforms.Merge(stemmed, w)
			w = stemmed
		}

		if w == "" || containsDigit(w) || len(w) <= 3 {
			continue
		}
		counts[w]++
	}
	return counts
}

// Stem exposes the pinned system stemmer.
func Stem(word string) string {
	return english.Stem(word, false)
}

func stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(asciiPunctuation, r) {
			return -1
		}
		return r
	}, s)
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
