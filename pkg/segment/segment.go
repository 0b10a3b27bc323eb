// Package segment splits streaming text into complete sentences as it
// arrives. Text is fed in arbitrary deltas; the segmenter detects sentence
// boundaries incrementally without re-processing text it has already
// emitted, which lets speech synthesis start on the first sentence while
// the rest of the response is still streaming.
package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Sentence is one detected sentence. Offset is the byte offset of the
// sentence's first character within the full accumulated text, so callers
// can correlate sentences with the transcript.
type Sentence struct {
	Content string
	Offset  int
}

// Segmenter accumulates text deltas and emits complete sentences.
//
// Sentence boundaries are the terminators '.', '!', '?', their full-width
// variants, and newlines. A period does not end a sentence when it sits
// inside a decimal number ("42.7"), after a short all-digit word ("1." as
// in German ordinal dates), or after a single letter (initials and
// abbreviations like "z. B.").
//
// While streaming, the last detected sentence is withheld because more
// text may still arrive and change its boundary; Flush emits it once the
// stream has ended. A Segmenter is reused across turns via Reset.
type Segmenter struct {
	buffer      strings.Builder
	lastEmitted int
}

// New creates an empty Segmenter.
func New() *Segmenter {
	return &Segmenter{}
}

// Feed appends delta to the buffer and returns any newly completed
// sentences, in order. The sentence currently being streamed is withheld.
func (s *Segmenter) Feed(delta string) []Sentence {
	if delta == "" {
		return nil
	}
	s.buffer.WriteString(delta)
	return s.scan(false)
}

// Flush emits all remaining buffered text as final sentences, regardless
// of trailing punctuation. Call it when the stream has ended.
func (s *Segmenter) Flush() []Sentence {
	return s.scan(true)
}

// Reset discards all state for reuse in a new turn.
func (s *Segmenter) Reset() {
	s.buffer.Reset()
	s.lastEmitted = 0
}

// Buffered returns the not-yet-emitted tail of the accumulated text.
func (s *Segmenter) Buffered() string {
	return s.buffer.String()[s.lastEmitted:]
}

func (s *Segmenter) scan(includeTail bool) []Sentence {
	text := s.buffer.String()[s.lastEmitted:]
	if text == "" {
		return nil
	}

	runes := []rune(text)
	// byteOff[i] is the byte offset of runes[i] within the full buffer;
	// byteOff[len(runes)] is one past the end.
	byteOff := make([]int, len(runes)+1)
	off := s.lastEmitted
	for i, r := range runes {
		byteOff[i] = off
		off += utf8.RuneLen(r)
	}
	byteOff[len(runes)] = off

	// Indexes of the last rune of each detected sentence.
	var ends []int
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' {
			ends = append(ends, i)
			continue
		}
		if !isTerminator(r) {
			continue
		}
		if r == '.' && !periodEndsSentence(runes, i) {
			continue
		}
		// Attach consecutive terminators and closing quotes to the
		// same sentence ("?!", `."`).
		j := i
		for j+1 < len(runes) && (isTerminator(runes[j+1]) || isClosing(runes[j+1])) {
			j++
		}
		ends = append(ends, j)
		i = j
	}

	// Segment boundaries: each end closes a segment, plus an open tail
	// after the last end.
	type span struct{ start, end int } // rune indexes, end exclusive
	var spans []span
	start := 0
	for _, e := range ends {
		spans = append(spans, span{start, e + 1})
		start = e + 1
	}
	if start < len(runes) {
		spans = append(spans, span{start, len(runes)})
	}

	if !includeTail && len(spans) > 0 {
		// The last segment may still grow; withhold it.
		spans = spans[:len(spans)-1]
	}

	var sentences []Sentence
	for _, sp := range spans {
		a, b := sp.start, sp.end
		for a < b && unicode.IsSpace(runes[a]) {
			a++
		}
		for b > a && unicode.IsSpace(runes[b-1]) {
			b--
		}
		if a < b {
			sentences = append(sentences, Sentence{
				Content: string(runes[a:b]),
				Offset:  byteOff[a],
			})
		}
	}
	if len(spans) > 0 {
		s.lastEmitted = byteOff[spans[len(spans)-1].end]
	}
	return sentences
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

func isClosing(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '»', '“', '”', '’', '」', '』':
		return true
	}
	return false
}

// periodEndsSentence reports whether the period at index i is a real
// sentence boundary rather than part of a number or abbreviation.
func periodEndsSentence(runes []rune, i int) bool {
	// Decimal number: digit on both sides.
	if i > 0 && i+1 < len(runes) && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]) {
		return false
	}

	// Inspect the word directly before the period.
	wordStart := i
	for wordStart > 0 && !unicode.IsSpace(runes[wordStart-1]) {
		wordStart--
	}
	word := runes[wordStart:i]
	if len(word) == 0 {
		return false
	}

	// Short all-digit words are ordinals or list markers ("1.", "23.").
	if len(word) <= 2 {
		allDigits := true
		for _, r := range word {
			if !unicode.IsDigit(r) {
				allDigits = false
				break
			}
		}
		if allDigits {
			return false
		}
	}

	// Single letters are initials or abbreviations ("z.", "B.", "J.").
	if len(word) == 1 && unicode.IsLetter(word[0]) {
		return false
	}

	return true
}
