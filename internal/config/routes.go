package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// routesFile is the on-disk shape of the route table:
//
//	routes:
//	  generation: [ollama, openai, anthropic]
//	  chat:       [openai, anthropic, ollama]
type routesFile struct {
	Routes map[string][]string `yaml:"routes"`
}

// DefaultRoutes returns the built-in route table: local first for batch
// work, cloud first for interactive tasks.
func DefaultRoutes() map[string][]string {
	return map[string][]string{
		"generation":     {"ollama", "openai", "anthropic"},
		"summarization":  {"ollama", "openai", "anthropic"},
		"classification": {"ollama", "openai", "anthropic"},
		"chat":           {"openai", "anthropic", "ollama"},
		"translation":    {"openai", "anthropic", "ollama"},
		"embedding":      {"ollama", "openai"},
	}
}

// LoadRoutes reads the YAML route table at path. A missing file is not an
// error: the built-in defaults are returned. Task kinds absent from the file
// keep their default route, so a partial file only overrides what it names.
func LoadRoutes(path string) (map[string][]string, error) {
	routes := DefaultRoutes()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return routes, nil
		}
		return nil, fmt.Errorf("config: failed to read routes file %s: %w", path, err)
	}

	var file routesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: failed to parse routes file %s: %w", path, err)
	}

	for kind, names := range file.Routes {
		routes[kind] = names
	}
	return routes, nil
}
