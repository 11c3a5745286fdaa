package handoff

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseJSON loads a pipeline from JSON and validates it.
func ParseJSON(data []byte) (*Pipeline, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON payload")
	}
	var p Pipeline
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse json pipeline: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseYAML loads a pipeline from YAML and validates it.
func ParseYAML(data []byte) (*Pipeline, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty YAML payload")
	}
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse yaml pipeline: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// MarshalJSON serializes a pipeline to JSON. Use pretty for indented output.
func MarshalJSON(p *Pipeline, pretty bool) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if pretty {
		return json.MarshalIndent(p, "", "  ")
	}
	return json.Marshal(p)
}

// MarshalYAML serializes a pipeline to YAML.
func MarshalYAML(p *Pipeline) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return yaml.Marshal(p)
}

// LoadFile loads a pipeline from a YAML or JSON file.
func LoadFile(path string) (*Pipeline, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("pipeline path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return parseAuto(data)
	}
}

func parseAuto(data []byte) (*Pipeline, error) {
	if strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
		if p, err := ParseJSON(data); err == nil {
			return p, nil
		}
	}
	p, yamlErr := ParseYAML(data)
	if yamlErr == nil {
		return p, nil
	}
	if p, err := ParseJSON(data); err == nil {
		return p, nil
	}
	return nil, fmt.Errorf("unsupported pipeline format: %w", yamlErr)
}
