package entities

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

type EntityYAML struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // motion|door|switch|light|sensor
}

type Entity struct {
	ID   string
	Name string
	Kind string
}

type Set struct {
	Items []Entity
	byID  map[string]Entity
}

func LoadFromFile(path string) (*Set, error) {
	if path == "" {
		path = "configs/entities.example.yaml"
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []EntityYAML
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	return New(raw)
}

func New(raw []EntityYAML) (*Set, error) {
	out := &Set{byID: map[string]Entity{}}
	for _, e := range raw {
		if e.ID == "" {
			return nil, fmt.Errorf("entidade sem id")
		}
		if _, dup := out.byID[e.ID]; dup {
			continue
		}
		ent := Entity{ID: e.ID, Name: e.Name, Kind: e.Kind}
		out.Items = append(out.Items, ent)
		out.byID[e.ID] = ent
	}
	return out, nil
}

func (s *Set) Contains(id string) bool { _, ok := s.byID[id]; return ok }

func (s *Set) IDs() []string {
	ids := make([]string, 0, len(s.Items))
	for _, e := range s.Items {
		ids = append(ids, e.ID)
	}
	sort.Strings(ids)
	return ids
}
