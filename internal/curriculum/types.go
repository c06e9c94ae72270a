package curriculum

// Bundle is the top-level document of a curriculum YAML file.
type Bundle struct {
	Chapters []Chapter `yaml:"chapters"`
}

// Chapter groups concepts for progress rollups.
type Chapter struct {
	ID       string    `yaml:"id"`
	Name     string    `yaml:"name"`
	Order    int       `yaml:"order"`
	Concepts []Concept `yaml:"concepts"`
}

// Concept is a node in the prerequisite graph.
type Concept struct {
	ID            string     `yaml:"id"`
	Name          string     `yaml:"name"`
	Prerequisites []string   `yaml:"prerequisites"`
	Questions     []Question `yaml:"questions"`
}

// Question is a practice item. Options are kept in their raw decoded form:
// usually a mapping with text and correct keys, but plain scalars are allowed.
type Question struct {
	ID         string `yaml:"id"`
	Content    string `yaml:"content"`
	Difficulty int    `yaml:"difficulty"`
	Options    []any  `yaml:"options"`
}
