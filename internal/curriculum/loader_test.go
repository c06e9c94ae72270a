package curriculum_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/p-n-ai/pai-adaptive/internal/curriculum"
)

func TestLoader_LoadChapters(t *testing.T) {
	dir := setupTestCurriculum(t)

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	chapters := loader.Chapters()
	if len(chapters) != 2 {
		t.Fatalf("Chapters() = %d, want 2", len(chapters))
	}
	if chapters[0].ID != "ch-numbers" || chapters[1].ID != "ch-functions" {
		t.Errorf("chapter order = [%s %s], want [ch-numbers ch-functions]", chapters[0].ID, chapters[1].ID)
	}
	if len(chapters[1].Concepts) != 1 {
		t.Fatalf("functions concepts = %d, want 1", len(chapters[1].Concepts))
	}
	fn := chapters[1].Concepts[0]
	if len(fn.Prerequisites) != 1 || fn.Prerequisites[0] != "fractions" {
		t.Errorf("Prerequisites = %v, want [fractions]", fn.Prerequisites)
	}
}

func TestLoader_QuestionOptionsKeepRawShape(t *testing.T) {
	dir := setupTestCurriculum(t)

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	q := loader.Chapters()[0].Concepts[0].Questions[0]
	if q.Difficulty != 800 {
		t.Errorf("Difficulty = %d, want 800", q.Difficulty)
	}
	if len(q.Options) != 3 {
		t.Fatalf("Options = %d, want 3", len(q.Options))
	}
	first, ok := q.Options[0].(map[string]any)
	if !ok {
		t.Fatalf("Options[0] type = %T, want map", q.Options[0])
	}
	if first["text"] != "1/2" {
		t.Errorf("Options[0].text = %v, want 1/2", first["text"])
	}
	if q.Options[2] != 42 {
		t.Errorf("Options[2] = %v, want scalar 42", q.Options[2])
	}
}

func TestLoader_NormalizesNames(t *testing.T) {
	dir := t.TempDir()
	// "Hàm số" written with combining marks (decomposed form).
	decomposed := "Ha\u0300m so\u0302\u0301"
	writeFile(t, filepath.Join(dir, "functions.yaml"), `
chapters:
  - id: ch-1
    name: "`+decomposed+`"
    concepts:
      - id: c1
`)

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	ch := loader.Chapters()[0]
	if ch.Name != "H\u00e0m s\u1ed1" {
		t.Errorf("Name = %q, want NFC form %q", ch.Name, "H\u00e0m s\u1ed1")
	}
	if ch.Concepts[0].Name != "c1" {
		t.Errorf("concept Name = %q, want id fallback c1", ch.Concepts[0].Name)
	}
}

func TestLoader_SkipsSchemaInvalidBundle(t *testing.T) {
	dir := setupTestCurriculum(t)
	writeFile(t, filepath.Join(dir, "broken.yaml"), `
chapters:
  - id: ch-broken
    name: Broken
    concepts:
      - id: c-broken
        questions:
          - id: q-broken
            difficulty: "hard"
`)

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	if len(loader.Chapters()) != 2 {
		t.Errorf("Chapters() = %d, want 2 (invalid bundle skipped)", len(loader.Chapters()))
	}
}

func TestLoader_DuplicateConcept(t *testing.T) {
	dir := setupTestCurriculum(t)
	writeFile(t, filepath.Join(dir, "dup.yaml"), `
chapters:
  - id: ch-dup
    name: Duplicate
    concepts:
      - id: fractions
`)

	if _, err := curriculum.NewLoader(dir); err == nil {
		t.Fatal("NewLoader() should fail on a concept defined twice")
	}
}

func TestLoader_EmptyDir(t *testing.T) {
	dir := t.TempDir()

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	if len(loader.Chapters()) != 0 {
		t.Errorf("Chapters() = %d, want 0 for empty dir", len(loader.Chapters()))
	}
}

func TestLoader_MissingDir(t *testing.T) {
	if _, err := curriculum.NewLoader(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("NewLoader() should fail for a missing directory")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		doc     any
		wantErr bool
	}{
		{"nil", nil, true},
		{"no chapters", map[string]any{}, true},
		{"empty chapters", map[string]any{"chapters": []any{}}, false},
		{"chapter without id", map[string]any{"chapters": []any{map[string]any{"name": "x"}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := curriculum.Validate(tt.doc); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func setupTestCurriculum(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, "grade10", "numbers.yaml"), `
chapters:
  - id: ch-numbers
    name: Numbers
    order: 1
    concepts:
      - id: fractions
        name: Fractions
        questions:
          - id: q-frac-1
            content: "What is 1/4 + 1/4?"
            difficulty: 800
            options:
              - text: "1/2"
                correct: true
              - text: "2/8"
                correct: false
              - 42
`)
	writeFile(t, filepath.Join(dir, "grade10", "functions.yml"), `
chapters:
  - id: ch-functions
    name: Functions
    order: 2
    concepts:
      - id: linear-functions
        name: Linear functions
        prerequisites: [fractions]
`)
	writeFile(t, filepath.Join(dir, "README.md"), "# not a bundle")

	return dir
}
