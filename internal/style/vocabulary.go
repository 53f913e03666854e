package style

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed vocabulary/*.yaml
var vocabularyFS embed.FS

// Vocabulary holds the closed lists the analyzer matches against. Lists are
// plain data so a locale or persona can swap them without code changes.
type Vocabulary struct {
	SentenceEnders []string `yaml:"sentence_enders" json:"sentenceEnders"`
	FillerWords    []string `yaml:"filler_words" json:"fillerWords"`
	FirstPerson    []string `yaml:"first_person" json:"firstPerson"`
	FormalMarkers  []string `yaml:"formal_markers" json:"formalMarkers"`
	CasualMarkers  []string `yaml:"casual_markers" json:"casualMarkers"`
}

// DefaultVocabulary returns the embedded Japanese vocabulary.
func DefaultVocabulary() Vocabulary {
	data, err := vocabularyFS.ReadFile("vocabulary/ja.yaml")
	if err != nil {
		panic(fmt.Sprintf("style: embedded vocabulary missing: %v", err))
	}
	v, err := ParseVocabulary(data)
	if err != nil {
		panic(fmt.Sprintf("style: embedded vocabulary invalid: %v", err))
	}
	return v
}

// LoadVocabulary reads a YAML vocabulary file. An empty path yields the
// default vocabulary.
func LoadVocabulary(path string) (Vocabulary, error) {
	if path == "" {
		return DefaultVocabulary(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("reading vocabulary file: %w", err)
	}
	v, err := ParseVocabulary(data)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("parsing vocabulary file %s: %w", path, err)
	}
	return v, nil
}

// ParseVocabulary decodes a YAML vocabulary document. Duplicate entries are
// dropped (keeping the first) so every pattern counts at most once per message.
func ParseVocabulary(data []byte) (Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Vocabulary{}, err
	}
	return v.normalized()
}

func (v Vocabulary) normalized() (Vocabulary, error) {
	lists := []struct {
		name string
		list *[]string
	}{
		{"sentence_enders", &v.SentenceEnders},
		{"filler_words", &v.FillerWords},
		{"first_person", &v.FirstPerson},
		{"formal_markers", &v.FormalMarkers},
		{"casual_markers", &v.CasualMarkers},
	}
	for _, l := range lists {
		seen := make(map[string]bool, len(*l.list))
		out := make([]string, 0, len(*l.list))
		for _, s := range *l.list {
			if s == "" {
				return Vocabulary{}, fmt.Errorf("%s: empty pattern", l.name)
			}
			if seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
		*l.list = out
	}
	return v, nil
}
