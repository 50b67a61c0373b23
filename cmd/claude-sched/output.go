package main

import (
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/hochfrequenz/claude-sched/internal/domain"
)

// errorPayload is the JSON document written to stderr on failure
type errorPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// exitStatus ends the process with code after its output was already written
type exitStatus struct {
	code int
}

func (e *exitStatus) Error() string {
	return "exit status"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// writeError renders err and returns the process exit code
func writeError(w io.Writer, err error) int {
	var status *exitStatus
	if errors.As(err, &status) {
		return status.code
	}
	_ = writeJSON(w, errorPayload{
		Success: false,
		Error:   domain.Kind(err),
		Message: err.Error(),
	})
	return 1
}

// success merges ok=true into a result document
func success(fields map[string]any) map[string]any {
	out := map[string]any{"success": true}
	for k, v := range fields {
		out[k] = v
	}
	return out
}
