package timeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Document is the on-disk YAML form of an authored timeline, so a generated
// video can be tweaked and re-rendered without calling the collaborator again.
type Document struct {
	Version    string      `yaml:"version"`
	DurationMs int64       `yaml:"duration_ms"`
	Scenes     []Scene     `yaml:"scenes"`
	Lyrics     []LyricLine `yaml:"lyrics"`
}

// WriteScenario saves a timeline as a YAML document.
func WriteScenario(t *Timeline, path string) error {
	doc := Document{
		Version:    "1.0",
		DurationMs: t.DurationMs,
		Scenes:     t.Scenes,
		Lyrics:     t.Lyrics,
	}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ReadScenario loads a YAML timeline document. The normalization in New runs
// again, so hand-edited files with unsorted entries still load correctly.
func ReadScenario(path string) (*Timeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("timeline: некорректный сценарий %s: %w", path, err)
	}
	return New(doc.Scenes, doc.Lyrics, doc.DurationMs)
}
