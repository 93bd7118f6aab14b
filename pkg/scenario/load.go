package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromJSON parses a night definition from JSON bytes.
func FromJSON(data []byte) (*Night, error) {
	var n Night
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("failed to unmarshal night: %w", err)
	}
	return &n, nil
}

// FromYAML parses a night definition from YAML bytes. The document is
// decoded generically and round-tripped through JSON so that one set of
// struct tags covers both formats.
func FromYAML(data []byte) (*Night, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal night yaml: %w", err)
	}
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert night yaml: %w", err)
	}
	return FromJSON(jsonData)
}

// LoadFile reads a night definition from a .json, .yaml or .yml file.
func LoadFile(path string) (*Night, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read night file: %w", err)
	}

	var n *Night
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		n, err = FromJSON(data)
	case ".yaml", ".yml":
		n, err = FromYAML(data)
	default:
		return nil, fmt.Errorf("unsupported night file extension: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	n.FileName = filepath.Base(path)
	return n, nil
}
