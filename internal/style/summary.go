package style

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

const (
	topWordsLimit          = 15
	topSentenceEndersLimit = 10
	topFillerWordsLimit    = 10
	firstPersonLimit       = 5
	topPhrasesLimit        = 15

	minSummaryPhraseCount = 2

	// politenessThreshold is exclusive: a score of exactly 0.3 is neutral.
	politenessThreshold = 0.3
)

// Summarize renders the ranked read view of p.
func Summarize(p Profile) Summary {
	phrases := make([]Entry, 0, topPhrasesLimit)
	// Filtering happens after the top-15 cut, so fewer than 15 may remain.
	for _, e := range topEntries(p.CommonPhrases, topPhrasesLimit) {
		if e.Count >= minSummaryPhraseCount && utf8.RuneCountInString(e.Text) >= minPhraseRunes {
			phrases = append(phrases, e)
		}
	}

	s := Summary{
		TotalMessages:     p.TotalMessages,
		TopWords:          topEntries(p.WordFrequency, topWordsLimit),
		TopSentenceEnders: topEntries(p.SentenceEnders, topSentenceEndersLimit),
		TopFillerWords:    topEntries(p.FillerWords, topFillerWordsLimit),
		FirstPersonUsage:  topEntries(p.FirstPerson, firstPersonLimit),
		TopPhrases:        phrases,
		PolitenessLabel:   PolitenessLabel(p.PolitenessScore),
		PolitenessScore:   p.PolitenessScore,
		AverageLength:     int(math.Round(p.AverageLength)),
	}
	if p.LastUpdated != nil {
		t := *p.LastUpdated
		s.LastUpdated = &t
	}
	return s
}

// PolitenessLabel maps a politeness score to formal, casual or neutral.
func PolitenessLabel(score float64) string {
	switch {
	case score > politenessThreshold:
		return LabelFormal
	case score < -politenessThreshold:
		return LabelCasual
	default:
		return LabelNeutral
	}
}

// maxPromptChars caps the prompt block to stay under ~500 tokens.
const maxPromptChars = 2000

// Prompt renders the summary as a short text block for a system prompt.
func (s Summary) Prompt() string {
	if s.TotalMessages == 0 {
		return "Speaking style: not yet learned."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Speaking style learned from %d messages.\n", s.TotalMessages)
	fmt.Fprintf(&b, "- Register: %s (%.2f)\n", s.PolitenessLabel, s.PolitenessScore)
	fmt.Fprintf(&b, "- Typical message length: %d characters\n", s.AverageLength)
	writeEntries(&b, "Sentence endings", s.TopSentenceEnders)
	writeEntries(&b, "First person", s.FirstPersonUsage)
	writeEntries(&b, "Filler words", s.TopFillerWords)
	writeEntries(&b, "Frequent words", s.TopWords)
	writeEntries(&b, "Recurring phrases", s.TopPhrases)

	out := strings.TrimRight(b.String(), "\n")
	if len(out) > maxPromptChars {
		// Ensure we don't split a multi-byte UTF-8 character.
		end := maxPromptChars
		for end > 0 && !utf8.RuneStart(out[end]) {
			end--
		}
		if idx := strings.LastIndex(out[:end], "\n"); idx > 0 {
			out = out[:idx]
		} else {
			out = out[:end]
		}
	}
	return out
}

func writeEntries(b *strings.Builder, label string, entries []Entry) {
	if len(entries) == 0 {
		return
	}
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("%s (%d)", e.Text, e.Count)
	}
	fmt.Fprintf(b, "- %s: %s\n", label, strings.Join(parts, ", "))
}
