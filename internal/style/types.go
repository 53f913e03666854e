package style

import (
	"fmt"
	"math"
	"time"
)

// Profile is the learned speaking style for one style key. It is stored and
// replaced as a whole document.
type Profile struct {
	TotalMessages   int            `json:"totalMessages"`
	WordFrequency   map[string]int `json:"wordFrequency"`
	SentenceEnders  map[string]int `json:"sentenceEnders"`
	FillerWords     map[string]int `json:"fillerWords"`
	FirstPerson     map[string]int `json:"firstPerson"`
	AverageLength   float64        `json:"averageLength"`
	PolitenessScore float64        `json:"politenessScore"` // -1 casual .. +1 formal
	CommonPhrases   map[string]int `json:"commonPhrases"`
	LastUpdated     *time.Time     `json:"lastUpdated"`
}

// NewProfile returns the canonical empty profile.
func NewProfile() Profile {
	return Profile{
		WordFrequency:  make(map[string]int),
		SentenceEnders: make(map[string]int),
		FillerWords:    make(map[string]int),
		FirstPerson:    make(map[string]int),
		CommonPhrases:  make(map[string]int),
	}
}

// Clone returns a deep copy of p.
func (p Profile) Clone() Profile {
	cp := p
	cp.WordFrequency = copyCounts(p.WordFrequency)
	cp.SentenceEnders = copyCounts(p.SentenceEnders)
	cp.FillerWords = copyCounts(p.FillerWords)
	cp.FirstPerson = copyCounts(p.FirstPerson)
	cp.CommonPhrases = copyCounts(p.CommonPhrases)
	if p.LastUpdated != nil {
		t := *p.LastUpdated
		cp.LastUpdated = &t
	}
	return cp
}

func copyCounts(m map[string]int) map[string]int {
	cp := make(map[string]int, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// normalize replaces nil maps (e.g. from a document written with null fields)
// with empty ones.
func (p *Profile) normalize() {
	if p.WordFrequency == nil {
		p.WordFrequency = make(map[string]int)
	}
	if p.SentenceEnders == nil {
		p.SentenceEnders = make(map[string]int)
	}
	if p.FillerWords == nil {
		p.FillerWords = make(map[string]int)
	}
	if p.FirstPerson == nil {
		p.FirstPerson = make(map[string]int)
	}
	if p.CommonPhrases == nil {
		p.CommonPhrases = make(map[string]int)
	}
}

func (p Profile) validate() error {
	if p.TotalMessages < 0 {
		return fmt.Errorf("totalMessages is negative (%d)", p.TotalMessages)
	}
	if p.AverageLength < 0 || math.IsNaN(p.AverageLength) || math.IsInf(p.AverageLength, 0) {
		return fmt.Errorf("averageLength is invalid (%v)", p.AverageLength)
	}
	if p.PolitenessScore < -1 || p.PolitenessScore > 1 || math.IsNaN(p.PolitenessScore) {
		return fmt.Errorf("politenessScore %v outside [-1, 1]", p.PolitenessScore)
	}
	maps := []struct {
		name   string
		counts map[string]int
	}{
		{"wordFrequency", p.WordFrequency},
		{"sentenceEnders", p.SentenceEnders},
		{"fillerWords", p.FillerWords},
		{"firstPerson", p.FirstPerson},
		{"commonPhrases", p.CommonPhrases},
	}
	for _, m := range maps {
		for k, v := range m.counts {
			if v < 0 {
				return fmt.Errorf("%s[%q] is negative (%d)", m.name, k, v)
			}
		}
	}
	return nil
}

// Entry is one ranked item of a frequency map.
type Entry struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

// Summary is the compact ranked view of a Profile consumed by response
// generators.
type Summary struct {
	TotalMessages     int        `json:"totalMessages"`
	TopWords          []Entry    `json:"topWords"`
	TopSentenceEnders []Entry    `json:"topSentenceEnders"`
	TopFillerWords    []Entry    `json:"topFillerWords"`
	FirstPersonUsage  []Entry    `json:"firstPersonUsage"`
	TopPhrases        []Entry    `json:"topPhrases"`
	PolitenessLabel   string     `json:"politenessLabel"`
	PolitenessScore   float64    `json:"politenessScore"`
	AverageLength     int        `json:"averageLength"`
	LastUpdated       *time.Time `json:"lastUpdated"`
}

// Politeness labels.
const (
	LabelFormal  = "formal"
	LabelCasual  = "casual"
	LabelNeutral = "neutral"
)
