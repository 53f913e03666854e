package style

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultVocabulary(t *testing.T) {
	v := DefaultVocabulary()

	lists := map[string][]string{
		"sentence_enders": v.SentenceEnders,
		"filler_words":    v.FillerWords,
		"first_person":    v.FirstPerson,
		"formal_markers":  v.FormalMarkers,
		"casual_markers":  v.CasualMarkers,
	}
	for name, l := range lists {
		if len(l) == 0 {
			t.Errorf("%s is empty", name)
		}
	}
	if !contains(v.SentenceEnders, "ね") {
		t.Error("sentence_enders missing ね")
	}
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func TestParseVocabulary_Dedup(t *testing.T) {
	v, err := ParseVocabulary([]byte(`
sentence_enders: [ね, よ, ね]
formal_markers: [です]
`))
	if err != nil {
		t.Fatalf("ParseVocabulary: %v", err)
	}
	if diff := cmp.Diff([]string{"ね", "よ"}, v.SentenceEnders); diff != "" {
		t.Errorf("SentenceEnders mismatch (-want +got):\n%s", diff)
	}
	if len(v.CasualMarkers) != 0 {
		t.Errorf("CasualMarkers = %v, want empty", v.CasualMarkers)
	}
}

func TestParseVocabulary_Errors(t *testing.T) {
	for name, doc := range map[string]string{
		"empty pattern": "filler_words: [\"\"]",
		"bad yaml":      "sentence_enders: [ね",
	} {
		if _, err := ParseVocabulary([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadVocabulary(t *testing.T) {
	v, err := LoadVocabulary("")
	if err != nil {
		t.Fatalf("LoadVocabulary(\"\"): %v", err)
	}
	if diff := cmp.Diff(DefaultVocabulary(), v); diff != "" {
		t.Errorf("empty path should give default vocabulary:\n%s", diff)
	}

	path := filepath.Join(t.TempDir(), "en.yaml")
	if err := os.WriteFile(path, []byte("first_person: [I, me]\nformal_markers: [please]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	v, err = LoadVocabulary(path)
	if err != nil {
		t.Fatalf("LoadVocabulary: %v", err)
	}

	a := NewAnalyzerWithClock(v, 0, newTestClock())
	p := a.Analyze(NewProfile(), "could you please help me")
	if p.FirstPerson["me"] != 1 || p.PolitenessScore != 0.3 {
		t.Errorf("custom vocabulary not applied: %+v", p)
	}

	if _, err := LoadVocabulary(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
