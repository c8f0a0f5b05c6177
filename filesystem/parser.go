// server/filesystem/parser.go
package filesystem

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/vinizap/mindmap/server/domain"
	"gopkg.in/yaml.v3"
)

// ReadDocument loads a seed document from path. YAML and JSON files are both
// accepted since JSON parses as YAML.
func ReadDocument(path string) (domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, err
	}

	return ParseDocument(data)
}

func ParseDocument(data []byte) (domain.Document, error) {
	var doc domain.Document

	if len(bytes.TrimSpace(data)) == 0 {
		return doc, fmt.Errorf("empty mind map file")
	}

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("failed to parse mind map: %w", err)
	}

	return doc.WithEmptyLists(), nil
}

// EncodeDocument writes doc as YAML in the same shape ReadDocument expects.
func EncodeDocument(w io.Writer, doc domain.Document) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode mind map: %w", err)
	}
	return encoder.Close()
}
