package bm25

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

const (
	compoundSeparator  = "_"
	defaultMaxCompound = 4
)

type TokenizerOptions struct {
	Lowercase   bool
	MaxCompound int
}

// Normalizer is the token normalization shared by stored tokens and queries.
type Normalizer struct {
	lowercase bool
}

func NewNormalizer(lowercase bool) Normalizer {
	return Normalizer{lowercase: lowercase}
}

// Normalize returns the canonical form of one token, or "" when nothing but
// punctuation is left.
func (n Normalizer) Normalize(token string) string {
	token = norm.NFC.String(token)
	token = strings.TrimFunc(token, isEdgePunct)
	if token == "" {
		return ""
	}
	if n.lowercase {
		// Casers are stateful; one per call keeps Normalize goroutine safe.
		token = cases.Lower(language.Vietnamese).String(token)
	}
	return token
}

// NormalizeAll normalizes a stored token list, dropping tokens that normalize to "".
func (n Normalizer) NormalizeAll(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if normalized := n.Normalize(token); normalized != "" {
			out = append(out, normalized)
		}
	}
	return out
}

// Vocabulary answers whether a compound word exists in the index.
type Vocabulary interface {
	Has(term string) bool
}

// Tokenizer turns free text into the word-segmented form of the corpus: words
// are whitespace separated and multi-syllable words are joined with "_".
type Tokenizer struct {
	normalizer  Normalizer
	vocabulary  Vocabulary
	maxCompound int
}

func NewTokenizer(opts TokenizerOptions, vocabulary Vocabulary) *Tokenizer {
	maxCompound := opts.MaxCompound
	if maxCompound <= 0 {
		maxCompound = defaultMaxCompound
	}
	return &Tokenizer{
		normalizer:  NewNormalizer(opts.Lowercase),
		vocabulary:  vocabulary,
		maxCompound: maxCompound,
	}
}

func (t *Tokenizer) Tokenize(text string) []string {
	fields := strings.FieldsFunc(norm.NFC.String(text), unicode.IsSpace)
	syllables := make([]string, 0, len(fields))
	for _, field := range fields {
		for _, part := range strings.FieldsFunc(field, isInnerBreak) {
			if token := t.normalizer.Normalize(part); token != "" {
				syllables = append(syllables, token)
			}
		}
	}
	if t.vocabulary == nil || t.maxCompound < 2 {
		return syllables
	}
	return t.mergeCompounds(syllables)
}

// mergeCompounds greedily joins the longest run of syllables that forms a word
// known to the index.
func (t *Tokenizer) mergeCompounds(syllables []string) []string {
	out := make([]string, 0, len(syllables))
	for i := 0; i < len(syllables); {
		width := 1
		for n := min(t.maxCompound, len(syllables)-i); n >= 2; n-- {
			candidate := strings.Join(syllables[i:i+n], compoundSeparator)
			if t.vocabulary.Has(candidate) {
				width = n
				break
			}
		}
		if width == 1 {
			out = append(out, syllables[i])
		} else {
			out = append(out, strings.Join(syllables[i:i+width], compoundSeparator))
		}
		i += width
	}
	return out
}

func isEdgePunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

// isInnerBreak splits on punctuation that never occurs inside a word.
func isInnerBreak(r rune) bool {
	switch r {
	case ',', ';', '?', '!', '"', '(', ')', '[', ']', '{', '}', '“', '”', '…':
		return true
	}
	return false
}
