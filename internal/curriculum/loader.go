package curriculum

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Loader loads and caches curriculum bundles from the filesystem.
type Loader struct {
	rootDir   string
	chapters  map[string]Chapter
	conceptCh map[string]string // concept id -> chapter id
	mu        sync.RWMutex
}

// NewLoader creates a new curriculum loader and loads all content.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir:   rootDir,
		chapters:  make(map[string]Chapter),
		conceptCh: make(map[string]string),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	l.warnDanglingPrerequisites()
	slog.Info("curriculum loaded", "chapters", len(l.chapters), "concepts", len(l.conceptCh))
	return l, nil
}

// Chapters returns all chapters ordered by display order, then id.
func (l *Loader) Chapters() []Chapter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	chapters := make([]Chapter, 0, len(l.chapters))
	for _, ch := range l.chapters {
		chapters = append(chapters, ch)
	}
	sort.Slice(chapters, func(i, j int) bool {
		if chapters[i].Order != chapters[j].Order {
			return chapters[i].Order < chapters[j].Order
		}
		return chapters[i].ID < chapters[j].ID
	})
	return chapters
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadBundle(path)
		}
		return nil
	})
}

func (l *Loader) loadBundle(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Warn("skipping invalid curriculum YAML", "path", path, "error", err)
		return nil
	}
	if err := Validate(doc); err != nil {
		slog.Warn("skipping curriculum bundle", "path", path, "error", err)
		return nil
	}

	var bundle Bundle
	if err := yaml.Unmarshal(data, &bundle); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ch := range bundle.Chapters {
		ch = normalizeChapter(ch)
		if _, dup := l.chapters[ch.ID]; dup {
			return fmt.Errorf("%s: duplicate chapter %q", path, ch.ID)
		}
		for _, c := range ch.Concepts {
			if other, dup := l.conceptCh[c.ID]; dup {
				return fmt.Errorf("%s: concept %q already defined in chapter %q", path, c.ID, other)
			}
			l.conceptCh[c.ID] = ch.ID
		}
		l.chapters[ch.ID] = ch
	}
	return nil
}

// warnDanglingPrerequisites logs prerequisite ids that name no concept.
// Such concepts stay locked until the graph is fixed.
func (l *Loader) warnDanglingPrerequisites() {
	for _, ch := range l.chapters {
		for _, c := range ch.Concepts {
			for _, p := range c.Prerequisites {
				if _, ok := l.conceptCh[p]; !ok {
					slog.Warn("unknown prerequisite", "concept_id", c.ID, "prerequisite", p)
				}
			}
		}
	}
}

func normalizeChapter(ch Chapter) Chapter {
	ch.Name = norm.NFC.String(strings.TrimSpace(ch.Name))
	concepts := make([]Concept, len(ch.Concepts))
	for i, c := range ch.Concepts {
		c.Name = norm.NFC.String(strings.TrimSpace(c.Name))
		if c.Name == "" {
			c.Name = c.ID
		}
		questions := make([]Question, len(c.Questions))
		for j, q := range c.Questions {
			q.Content = norm.NFC.String(q.Content)
			questions[j] = q
		}
		c.Questions = questions
		concepts[i] = c
	}
	ch.Concepts = concepts
	return ch
}
