package ai

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ClassNames maps model class ids to names.
type ClassNames map[int]string

// defaultClassNames covers the COCO ids the SSD model is usually asked about.
var defaultClassNames = ClassNames{
	1:  "person",
	2:  "bicycle",
	3:  "car",
	4:  "motorcycle",
	44: "bottle",
	77: "phone",
}

// DefaultClassNames returns a copy of the built-in table.
func DefaultClassNames() ClassNames {
	names := make(ClassNames, len(defaultClassNames))
	for id, name := range defaultClassNames {
		names[id] = name
	}
	return names
}

// Name returns the label for id, falling back to "unknown_<id>".
func (c ClassNames) Name(id int) string {
	if name, ok := c[id]; ok {
		return name
	}
	return fmt.Sprintf("unknown_%d", id)
}

// dataset mirrors the training data.yaml; names may be a list or an id->name map.
type dataset struct {
	Names yaml.Node `yaml:"names"`
}

// LoadClassNames reads the names section of a dataset YAML file.
func LoadClassNames(path string) (ClassNames, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read class names: %w", err)
	}
	return parseClassNames(raw)
}

func parseClassNames(raw []byte) (ClassNames, error) {
	var ds dataset
	if err := yaml.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse class names: %w", err)
	}

	names := ClassNames{}
	switch ds.Names.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := ds.Names.Decode(&list); err != nil {
			return nil, fmt.Errorf("failed to decode class list: %w", err)
		}
		for i, name := range list {
			names[i] = name
		}
	case yaml.MappingNode:
		if err := ds.Names.Decode(&names); err != nil {
			return nil, fmt.Errorf("failed to decode class map: %w", err)
		}
	default:
		return nil, fmt.Errorf("names section missing")
	}

	return names, nil
}
