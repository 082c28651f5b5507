package tts

import (
	"regexp"
	"strings"
)

// DefaultMaxChunkSize bounds one synthesis request. Both cloud providers
// reject payloads much past a thousand characters, so chunks stay under
// this and the orchestrator stitches the audio back together.
const DefaultMaxChunkSize = 900

var (
	reWhitespace = regexp.MustCompile(`\s+`)
	reParagraph  = regexp.MustCompile(`\n\s*\n`)
	reSentence   = regexp.MustCompile(`[^.!?]+[.!?]+|[^.!?]+$`)
)

// Split cuts text into ordered chunks of at most max characters, preferring
// paragraph boundaries, then sentence boundaries, then word boundaries.
// Joining the chunks with single spaces reproduces the whitespace-normalized
// input. A single token longer than max is passed through oversized rather
// than cut mid-word.
func Split(text string, max int) []string {
	if max <= 0 {
		max = DefaultMaxChunkSize
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []string
	for _, para := range reParagraph.Split(text, -1) {
		para = strings.TrimSpace(reWhitespace.ReplaceAllString(para, " "))
		if para == "" {
			continue
		}
		if len(para) <= max {
			// Small paragraphs ride along with the previous chunk when the
			// joined result still fits.
			if n := len(chunks); n > 0 && len(chunks[n-1])+1+len(para) <= max {
				chunks[n-1] = chunks[n-1] + " " + para
			} else {
				chunks = append(chunks, para)
			}
			continue
		}
		chunks = append(chunks, splitParagraph(para, max)...)
	}
	return chunks
}

// splitParagraph cuts one oversized paragraph at sentence boundaries,
// accumulating sentences until the next one would overflow.
func splitParagraph(para string, max int) []string {
	var out []string
	var current string

	flush := func() {
		if current != "" {
			out = append(out, current)
			current = ""
		}
	}

	for _, sentence := range reSentence.FindAllString(para, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if len(sentence) > max {
			flush()
			out = append(out, splitSentence(sentence, max)...)
			continue
		}
		switch {
		case current == "":
			current = sentence
		case len(current)+1+len(sentence) <= max:
			current = current + " " + sentence
		default:
			flush()
			current = sentence
		}
	}
	flush()
	return out
}

// splitSentence force-splits at the last space at or before the limit. When
// a window holds one unbroken token the whole token is emitted oversized;
// providers have so far tolerated this (see Split doc).
func splitSentence(sentence string, max int) []string {
	var out []string
	for len(sentence) > max {
		cut := strings.LastIndex(sentence[:max+1], " ")
		if cut <= 0 {
			// No space inside the window: take the whole token.
			next := strings.IndexByte(sentence, ' ')
			if next == -1 {
				break
			}
			out = append(out, sentence[:next])
			sentence = sentence[next+1:]
			continue
		}
		out = append(out, sentence[:cut])
		sentence = sentence[cut+1:]
	}
	if sentence != "" {
		out = append(out, sentence)
	}
	return out
}
