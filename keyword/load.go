package keyword

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// On-disk keyword file. Both the camelCase keys and the older snake_case keys are accepted; if both are present
// they are merged.
type File struct {
	CriticalKeywords   map[string]int `json:"criticalKeywords" yaml:"criticalKeywords"`
	ContextualKeywords map[string]int `json:"contextualKeywords" yaml:"contextualKeywords"`
	PositiveKeywords   []string       `json:"positiveKeywords" yaml:"positiveKeywords"`

	LegacyCritical   map[string]int `json:"critical_keywords,omitempty" yaml:"critical_keywords,omitempty"`
	LegacyContextual map[string]int `json:"contextual_keywords,omitempty" yaml:"contextual_keywords,omitempty"`
	LegacyPositive   []string       `json:"positive_keywords,omitempty" yaml:"positive_keywords,omitempty"`
}

func (f *File) Model() (*Model, error) {
	return NewModel(
		mergeWeights(f.CriticalKeywords, f.LegacyCritical),
		mergeWeights(f.ContextualKeywords, f.LegacyContextual),
		append(append([]string{}, f.PositiveKeywords...), f.LegacyPositive...),
	)
}

func mergeWeights(a, b map[string]int) map[string]int {
	out := make(map[string]int, len(a)+len(b))
	for k, v := range b {
		out[k] = v
	}
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Load reads a keyword file (JSON, or YAML by extension). It never returns a nil model: a missing or malformed
// file yields an empty model and an error, which the caller should log as a warning and carry on.
func Load(path string) (*Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Empty(), fmt.Errorf("keyword file not found, using empty tables: %w", err)
		}
		return Empty(), fmt.Errorf("reading keyword file: %w", err)
	}

	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &f)
	default:
		err = json.Unmarshal(raw, &f)
	}
	if err != nil {
		return Empty(), fmt.Errorf("parsing keyword file %s, using empty tables: %w", path, err)
	}
	return f.Model()
}
