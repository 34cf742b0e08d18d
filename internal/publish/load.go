package publish

import (
	"fmt"
	"os"

	"promocast/internal/config"
)

// LoadRequest reads a batch from a JSON or YAML file.
func LoadRequest(path string) (Request, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Request{}, err
	}
	return ParseRequest(b, path)
}

// ParseRequest strictly decodes a batch. name selects YAML by extension.
func ParseRequest(data []byte, name string) (Request, error) {
	jb, err := config.ToJSON(name, data)
	if err != nil {
		return Request{}, fmt.Errorf("batch: %w", err)
	}
	var req Request
	if err := config.DecodeStrict(jb, &req); err != nil {
		return Request{}, fmt.Errorf("batch: %w", err)
	}
	return req, nil
}
