package yaml

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Writer renders data as YAML
type Writer struct{}

// NewWriter creates a new YAML writer
func NewWriter() *Writer {
	return &Writer{}
}

// Encode writes data as a YAML document
func (w *Writer) Encode(out io.Writer, data any) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)

	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to flush YAML: %w", err)
	}

	return nil
}
