package words

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileSupply serves words from an in-memory category map, usually loaded
// from a YAML file of the form
//
//	animals: [cat, dog, ...]
//	food: [pizza, ...]
type FileSupply struct {
	categories map[string][]string
}

// NewFileSupply builds a supply over the given category map. Category names
// are matched case-insensitively.
func NewFileSupply(categories map[string][]string) *FileSupply {
	normalized := make(map[string][]string, len(categories))
	for name, list := range categories {
		key := strings.ToLower(strings.TrimSpace(name))
		normalized[key] = Clean(append(normalized[key], list...))
	}
	return &FileSupply{categories: normalized}
}

// LoadFile reads a YAML words file.
func LoadFile(path string) (*FileSupply, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read words file: %w", err)
	}
	categories, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return NewFileSupply(categories), nil
}

// Parse decodes a YAML category map.
func Parse(data []byte) (map[string][]string, error) {
	var categories map[string][]string
	if err := yaml.Unmarshal(data, &categories); err != nil {
		return nil, fmt.Errorf("parse words file: %w", err)
	}
	return categories, nil
}

// Categories returns the known category names, sorted.
func (f *FileSupply) Categories() []string {
	names := make([]string, 0, len(f.categories))
	for name := range f.categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *FileSupply) GetRandomWords(_ context.Context, categories []string, count int) ([]string, error) {
	if len(categories) == 0 {
		categories = f.Categories()
	}
	var pool []string
	for _, c := range categories {
		pool = append(pool, f.categories[strings.ToLower(strings.TrimSpace(c))]...)
	}
	return sample(Clean(pool), count), nil
}
