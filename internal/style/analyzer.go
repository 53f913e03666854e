package style

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

const (
	// politenessAlpha is the EMA weight of the newest message.
	politenessAlpha = 0.3

	minWordRunes   = 2
	minPhraseRunes = 3
	maxPhraseRunes = 8

	// Once commonPhrases holds more than phrasePruneThreshold entries it is
	// cut down to the phraseRetainCount most frequent ones.
	phrasePruneThreshold = 5000
	phraseRetainCount    = 2000

	// DefaultMaxMinedRunes bounds phrase mining for pathologically long input.
	DefaultMaxMinedRunes = 4000
)

// Lengths are measured in Unicode code points. For BMP text (kana, kanji,
// Latin) this matches UTF-16 code units; astral characters count as one.

// Analyzer folds chat messages into a Profile. It holds no per-key state and
// is safe for concurrent use.
type Analyzer struct {
	vocab         Vocabulary
	clock         Clock
	maxMinedRunes int
}

// NewAnalyzer creates an Analyzer using the wall clock. maxMinedRunes <= 0
// selects DefaultMaxMinedRunes.
func NewAnalyzer(vocab Vocabulary, maxMinedRunes int) *Analyzer {
	return NewAnalyzerWithClock(vocab, maxMinedRunes, realClock{})
}

// NewAnalyzerWithClock creates an Analyzer with a custom clock (for testing).
func NewAnalyzerWithClock(vocab Vocabulary, maxMinedRunes int, clock Clock) *Analyzer {
	if maxMinedRunes <= 0 {
		maxMinedRunes = DefaultMaxMinedRunes
	}
	return &Analyzer{
		vocab:         vocab,
		clock:         clock,
		maxMinedRunes: maxMinedRunes,
	}
}

// Vocabulary returns the lists the analyzer matches against.
func (a *Analyzer) Vocabulary() Vocabulary {
	return a.vocab
}

// Analyze returns p updated with one more message. p itself is not modified.
func (a *Analyzer) Analyze(p Profile, text string) Profile {
	out := p.Clone()
	out.normalize()
	a.apply(&out, text)
	return out
}

// Rebuild replays messages (oldest first) onto an empty profile. The result
// equals calling Analyze for each message in order starting from NewProfile.
func (a *Analyzer) Rebuild(messages []string) Profile {
	p, _ := a.rebuild(messages)
	return p
}

// rebuild is Rebuild that also reports how many phrases were pruned in total.
func (a *Analyzer) rebuild(messages []string) (Profile, int) {
	p := NewProfile()
	pruned := 0
	for _, m := range messages {
		pruned += a.apply(&p, m)
	}
	return p, pruned
}

// apply mutates p in place and reports how many phrases were pruned.
func (a *Analyzer) apply(p *Profile, text string) int {
	runes := []rune(text)

	p.TotalMessages++
	n := float64(p.TotalMessages)
	p.AverageLength = (p.AverageLength*(n-1) + float64(len(runes))) / n

	for _, seg := range splitSegments(text) {
		if utf8.RuneCountInString(seg) >= minWordRunes {
			p.WordFrequency[seg]++
		}
	}

	countContained(p.SentenceEnders, a.vocab.SentenceEnders, text)
	countContained(p.FillerWords, a.vocab.FillerWords, text)
	countContained(p.FirstPerson, a.vocab.FirstPerson, text)

	formal := containedCount(a.vocab.FormalMarkers, text)
	casual := containedCount(a.vocab.CasualMarkers, text)
	if total := formal + casual; total > 0 {
		sample := float64(formal-casual) / float64(total)
		p.PolitenessScore = politenessAlpha*sample + (1-politenessAlpha)*p.PolitenessScore
	}

	mined := runes
	if len(mined) > a.maxMinedRunes {
		mined = mined[:a.maxMinedRunes]
	}
	minePhrases(p.CommonPhrases, mined)

	pruned := 0
	if len(p.CommonPhrases) > phrasePruneThreshold {
		before := len(p.CommonPhrases)
		p.CommonPhrases = retainTop(p.CommonPhrases, phraseRetainCount)
		pruned = before - len(p.CommonPhrases)
	}

	now := a.clock.Now()
	p.LastUpdated = &now
	return pruned
}

// isSegmentBreak reports the characters the coarse word splitter cuts on:
// any Unicode whitespace (tab, CR, U+3000) plus the listed punctuation.
// No morphological segmentation happens: Japanese segments are usually
// whole clauses.
func isSegmentBreak(r rune) bool {
	switch r {
	case '、', '。', '！', '？', '!', '?', ',', '.':
		return true
	}
	return unicode.IsSpace(r)
}

func splitSegments(text string) []string {
	return strings.FieldsFunc(text, isSegmentBreak)
}

func countContained(counts map[string]int, patterns []string, text string) {
	for _, pat := range patterns {
		if strings.Contains(text, pat) {
			counts[pat]++
		}
	}
}

func containedCount(patterns []string, text string) int {
	n := 0
	for _, pat := range patterns {
		if strings.Contains(text, pat) {
			n++
		}
	}
	return n
}

func minePhrases(counts map[string]int, runes []rune) {
	for i := range runes {
		for l := minPhraseRunes; l <= maxPhraseRunes && i+l <= len(runes); l++ {
			window := runes[i : i+l]
			if noiseOnly(window) {
				continue
			}
			counts[string(window)]++
		}
	}
}

func noiseOnly(window []rune) bool {
	for _, r := range window {
		if !isSegmentBreak(r) && !unicode.IsPunct(r) {
			return false
		}
	}
	return true
}
