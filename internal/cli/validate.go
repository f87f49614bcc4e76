package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/convograph/internal/validator"
)

// ErrValidationFailed is returned when a document has error-level findings.
var ErrValidationFailed = errors.New("validation failed")

// Validate checks the document at path and prints the report as text or JSON.
func Validate(path string, jsonOut bool, w io.Writer) error {
	report, g, err := validator.ValidateFile(path)
	if err != nil {
		return err
	}

	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(w, report, g != nil)
	}

	if !report.OK() {
		return ErrValidationFailed
	}
	return nil
}

func printReport(w io.Writer, r *validator.Report, loaded bool) {
	for _, f := range r.Findings {
		fmt.Fprintln(w, f.String())
	}
	errs, warns := len(r.Errors()), len(r.Warnings())
	switch {
	case errs > 0:
		fmt.Fprintf(w, "✗ %s: %d error(s), %d warning(s)\n", r.Source, errs, warns)
	case warns > 0:
		fmt.Fprintf(w, "✓ %s is valid with %d warning(s)\n", r.Source, warns)
	case loaded:
		fmt.Fprintf(w, "✓ %s is valid\n", r.Source)
	}
}
