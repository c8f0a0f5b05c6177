// server/domain/validate.go
package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidationError lists every problem found in a document. It is only
// produced in strict mode; the store itself accepts anything.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid mind map: " + strings.Join(e.Problems, "; ")
}

// Validate checks required fields, node id uniqueness and that every
// connection endpoint names an existing node.
func Validate(doc Document) error {
	var problems []string

	if err := validate.Struct(doc); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			problems = append(problems, formatFieldError(fe))
		}
	}

	ids := make(map[string]struct{}, len(doc.Nodes))
	for i, n := range doc.Nodes {
		if n.ID == "" {
			continue
		}
		if _, dup := ids[n.ID]; dup {
			problems = append(problems, fmt.Sprintf("nodes[%d]: duplicate id %q", i, n.ID))
			continue
		}
		ids[n.ID] = struct{}{}
	}

	for i, c := range doc.Connections {
		if _, ok := ids[c.Source]; c.Source != "" && !ok {
			problems = append(problems, fmt.Sprintf("connections[%d]: unknown source %q", i, c.Source))
		}
		if _, ok := ids[c.Target]; c.Target != "" && !ok {
			problems = append(problems, fmt.Sprintf("connections[%d]: unknown target %q", i, c.Target))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func formatFieldError(fe validator.FieldError) string {
	// Namespace looks like "Document.Nodes[0].ID"
	field := strings.TrimPrefix(fe.Namespace(), "Document.")
	field = strings.ToLower(field)

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
