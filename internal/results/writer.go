// Package results writes the review output file and the optional archives.
package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	apperrors "treatment-review/internal/common/errors"
	"treatment-review/internal/models"
)

// WriteError reports a results file that was not written.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write results %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) ErrorCode() apperrors.ErrorCode {
	return apperrors.ErrCodeOutputWriteFailed
}

// FileWriter writes Results as indented JSON after checking the document
// against the Results schema.
type FileWriter struct {
	schema *gojsonschema.Schema
}

func NewFileWriter() (*FileWriter, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(models.ResultsSchema()))
	if err != nil {
		return nil, fmt.Errorf("compile results schema: %w", err)
	}
	return &FileWriter{schema: schema}, nil
}

// Encode validates r and returns the bytes Write would store.
func (w *FileWriter) Encode(r *models.Results) ([]byte, error) {
	r.EnsureSlices()
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, err
	}

	res, err := w.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, err
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("results do not match schema: %s", strings.Join(msgs, "; "))
	}
	return append(data, '\n'), nil
}

// Write stores r at path in one step: a temporary file in the same directory
// is renamed over path, so no partial file is left on failure.
func (w *FileWriter) Write(path string, r *models.Results) error {
	data, err := w.Encode(r)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &WriteError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &WriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &WriteError{Path: path, Err: err}
	}
	return nil
}
