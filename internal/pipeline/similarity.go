package pipeline

import (
	"math/bits"
	"strings"
	"unicode"

	"github.com/go-dedup/simhash"
)

// Hamming distance at or below which two utterance fingerprints count as the
// same text. 64-bit simhash with word-bigram features; small wording drift
// between two transcriptions of the same audio lands well under this.
const nearDuplicateDistance = 3

// SimilarText reports whether two utterance texts are near-identical. Exact
// match after normalization short-circuits; otherwise simhash fingerprints
// are compared, so a one-word difference at a chunk seam still matches.
func SimilarText(a, b string) bool {
	na, nb := normalizeText(a), normalizeText(b)
	if na == "" || nb == "" {
		return na == nb
	}
	if na == nb {
		return true
	}
	return hammingDistance(fingerprint(na), fingerprint(nb)) <= nearDuplicateDistance
}

// wordFeatures implements simhash.FeatureSet over word bigrams. Unigrams are
// used when the text is too short to shingle.
type wordFeatures struct {
	words []string
}

func (w wordFeatures) GetFeatures() []simhash.Feature {
	if len(w.words) < 2 {
		features := make([]simhash.Feature, 0, len(w.words))
		for _, word := range w.words {
			features = append(features, simhash.NewFeature([]byte(word)))
		}
		return features
	}
	features := make([]simhash.Feature, 0, len(w.words)-1)
	for i := 0; i < len(w.words)-1; i++ {
		features = append(features, simhash.NewFeature([]byte(w.words[i]+" "+w.words[i+1])))
	}
	return features
}

func fingerprint(normalized string) uint64 {
	sh := simhash.NewSimhash()
	return sh.GetSimhash(wordFeatures{words: strings.Fields(normalized)})
}

func hammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// normalizeText lowercases and strips everything but letters, digits, and
// spaces, collapsing runs of whitespace. Apostrophes are removed without
// splitting the word, so "let's" and "lets" normalize to the same token.
func normalizeText(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '\'' || r == '’':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
