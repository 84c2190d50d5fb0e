package stack

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ServiceNames returns the service names declared in a compose file. Only
// the top-level services keys are read; the tool deliberately understands
// nothing else about the topology.
func ServiceNames(composePath string) ([]string, error) {
	b, err := os.ReadFile(composePath)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Services map[string]yaml.Node `yaml:"services"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse compose file %s: %w", composePath, err)
	}
	names := make([]string, 0, len(doc.Services))
	for name := range doc.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
