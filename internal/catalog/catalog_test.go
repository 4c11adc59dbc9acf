package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fablecast/dramatis/internal/character"
)

func TestMatch_GenderOutweighsEverything(t *testing.T) {
	c, err := New([]Speaker{
		{ID: 1, Gender: "male", Age: "adult", Accent: "northern", Pitch: "low", Keywords: []string{"gravelly"}},
		{ID: 2, Gender: "female"},
	})
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}

	profile := character.VoiceProfile{Gender: "female", Age: "adult", Accent: "northern", Pitch: 0.8}
	sp, ok := c.Match("Mira", profile, []string{"gravelly voice"})
	if !ok {
		t.Fatal("expected a match")
	}
	if sp.ID != 2 {
		t.Errorf("expected gender match to win, got speaker %d", sp.ID)
	}
}

func TestMatch_AgeBreaksGenderTie(t *testing.T) {
	c, err := New([]Speaker{
		{ID: 1, Gender: "female", Age: "elderly"},
		{ID: 2, Gender: "female", Age: "young"},
	})
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}

	sp, _ := c.Match("Mira", character.VoiceProfile{Gender: "female", Age: "teen"}, nil)
	if sp.ID != 2 {
		t.Errorf("expected young bucket, got speaker %d", sp.ID)
	}
}

func TestMatch_KeywordOverlap(t *testing.T) {
	c, err := New([]Speaker{
		{ID: 1, Gender: "male", Keywords: []string{"whisper"}},
		{ID: 2, Gender: "male", Keywords: []string{"booming", "commanding"}},
	})
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}

	sp, _ := c.Match("Rook", character.VoiceProfile{Gender: "male"}, []string{"booming laugh", "commanding presence"})
	if sp.ID != 2 {
		t.Errorf("expected keyword overlap to win, got speaker %d", sp.ID)
	}
}

func TestMatch_Deterministic(t *testing.T) {
	c := Default()
	profile := character.VoiceProfile{Gender: "female", Age: "young", Pitch: 1.2}

	first, ok := c.Match("Mira", profile, []string{"bright"})
	if !ok {
		t.Fatal("expected a match")
	}
	for i := 0; i < 5; i++ {
		again, _ := c.Match("Mira", profile, []string{"bright"})
		if again.ID != first.ID {
			t.Fatalf("match not deterministic: %d then %d", first.ID, again.ID)
		}
	}
	if first.ID < 10 || first.ID > 30 {
		t.Errorf("female young should land in 10-30, got %d", first.ID)
	}
}

func TestMatch_CaseAndSpellingStable(t *testing.T) {
	c := Default()
	profile := character.VoiceProfile{Gender: "male", Age: "middle-aged", Pitch: 0.8}

	a, _ := c.Match("Rook", profile, nil)
	b, _ := c.Match("  rook ", profile, nil)
	if a.ID != b.ID {
		t.Errorf("name normalization broke determinism: %d vs %d", a.ID, b.ID)
	}
	if a.ID < 71 || a.ID > 90 {
		t.Errorf("male adult should land in 71-90, got %d", a.ID)
	}
}

func TestDefault_CoversVCTKRanges(t *testing.T) {
	c := Default()
	if c.Len() != 99 {
		t.Fatalf("expected 99 default speakers, got %d", c.Len())
	}
	sp, ok := c.Get(108)
	if !ok || normalizeAge(sp.Age) != "elderly" {
		t.Errorf("expected elderly at 108, got %+v ok=%v", sp, ok)
	}
	if _, ok := c.Get(9); ok {
		t.Error("ids below 10 should not exist in the default catalog")
	}
}

func TestNew_RejectsBadEntries(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("expected error for empty catalog")
	}
	if _, err := New([]Speaker{{ID: 1}, {ID: 1}}); err == nil {
		t.Error("expected error for duplicate ids")
	}
	if _, err := New([]Speaker{{ID: 1, Gender: "robot"}}); err == nil {
		t.Error("expected error for invalid gender")
	}
	if _, err := New([]Speaker{{ID: 1, Pitch: "squeaky"}}); err == nil {
		t.Error("expected error for invalid pitch category")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	content := `speakers:
  - id: 12
    name: studio_a
    gender: female
    age: young
    accent: american
    pitch: high
    keywords: [bright, cheerful]
  - id: 77
    name: studio_b
    gender: male
    age: adult
    pitch: low
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 speakers, got %d", c.Len())
	}
	sp, ok := c.Get(12)
	if !ok || sp.Name != "studio_a" || len(sp.Keywords) != 2 {
		t.Errorf("unexpected entry: %+v", sp)
	}

	bare := filepath.Join(dir, "bare.yaml")
	if err := os.WriteFile(bare, []byte("- id: 5\n  gender: female\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	c, err = LoadFile(bare)
	if err != nil {
		t.Fatalf("load bare: %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 speaker from bare list, got %d", c.Len())
	}
}
