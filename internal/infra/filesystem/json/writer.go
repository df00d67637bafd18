package json

import (
	"encoding/json"
	"fmt"
	"io"
)

// Writer renders data as indented JSON
type Writer struct{}

// NewWriter creates a new JSON writer
func NewWriter() *Writer {
	return &Writer{}
}

// Encode writes data as JSON followed by a newline
func (w *Writer) Encode(out io.Writer, data any) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := out.Write(append(content, '\n')); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}

	return nil
}
