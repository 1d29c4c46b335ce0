package main

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 500
	DefaultOverlapWords = 50
)

var sentenceBoundary = regexp.MustCompile(`[.!?]+`)

// DefaultChunkfier packs sentences into chunks of at most chunkSize characters,
// counting the joining space.
// Each chunk after the first starts with the last overlapWords words of the
// previous one. A single sentence longer than chunkSize is kept whole.
type DefaultChunkfier struct {
	chunkSize    int
	overlapWords int
}

func NewChunkifier(chunkSize, overlapWords int) *DefaultChunkfier {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlapWords < 0 {
		overlapWords = 0
	}

	return &DefaultChunkfier{chunkSize: chunkSize, overlapWords: overlapWords}
}

func (c *DefaultChunkfier) Chunkify(text string) []string {
	res := []string{}
	cur := ""

	for _, s := range splitSentences(text) {
		if cur != "" && utf8.RuneCountInString(cur)+1+utf8.RuneCountInString(s) > c.chunkSize {
			res = append(res, cur)
			cur = joinWords(c.tail(cur), s)
			continue
		}

		cur = joinWords(cur, s)
	}

	if cur != "" {
		res = append(res, cur)
	}

	return res
}

func (c *DefaultChunkfier) tail(chunk string) string {
	if c.overlapWords == 0 {
		return ""
	}

	words := strings.Fields(chunk)
	return strings.Join(words[max(0, len(words)-c.overlapWords):], " ")
}

// splitSentences is a heuristic: abbreviations, decimals and ellipses split too.
func splitSentences(text string) []string {
	var res []string
	for _, s := range sentenceBoundary.Split(text, -1) {
		s = strings.TrimSpace(s)
		if s != "" {
			res = append(res, s)
		}
	}

	return res
}

func joinWords(a, b string) string {
	if a == "" {
		return b
	}

	return a + " " + b
}
