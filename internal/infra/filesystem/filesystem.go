package filesystem

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/compose-network/xdomain-relayer/internal/infra/filesystem/json"
	"github.com/compose-network/xdomain-relayer/internal/infra/filesystem/yaml"
)

type (
	// Writer renders command artifacts such as proofs and status reports.
	Writer interface {
		Encode(w io.Writer, data any) error
	}

	Format string
)

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func NewWriter(format Format) (Writer, error) {
	switch Format(strings.ToLower(string(format))) {
	case FormatJSON, "":
		return json.NewWriter(), nil
	case FormatYAML, "yml":
		return yaml.NewWriter(), nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// WriteFile encodes data into path, creating parent directories. An empty path
// or "-" writes to stdout.
func WriteFile(writer Writer, path string, data any) error {
	if path == "" || path == "-" {
		return writer.Encode(os.Stdout, data)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if err := writer.Encode(f, data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	return nil
}
