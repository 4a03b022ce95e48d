package cli

import (
	"encoding/json"
	stderrors "errors"
	"io"

	"github.com/rileyhilliard/remoteops/internal/errors"
)

// JSONError is the --json rendering of a command failure.
type JSONError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// ErrorToJSON converts an error to its JSON form. Unstructured errors get
// the UNKNOWN code.
func ErrorToJSON(err error) JSONError {
	if err == nil {
		return JSONError{}
	}

	var structured *errors.Error
	if stderrors.As(err, &structured) {
		return JSONError{
			Code:       structured.Code,
			Message:    structured.Message,
			Suggestion: structured.Suggestion,
		}
	}
	return JSONError{
		Code:    "UNKNOWN",
		Message: err.Error(),
	}
}

// jsonErrorEnvelope wraps a JSONError for output.
type jsonErrorEnvelope struct {
	Error JSONError `json:"error"`
}

// writeJSON writes v as indented JSON followed by a newline.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
