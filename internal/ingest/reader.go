// Package ingest reads medical record documents as plain text.
package ingest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	apperrors "treatment-review/internal/common/errors"
	"treatment-review/internal/common/logger"
)

// SupportedExtensions lists the accepted input extensions.
var SupportedExtensions = []string{".txt", ".pdf"}

// UnsupportedFormatError is returned for any extension other than .txt and .pdf.
type UnsupportedFormatError struct {
	Path      string
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file type %q for %s: must be one of %v", e.Extension, e.Path, SupportedExtensions)
}

func (e *UnsupportedFormatError) ErrorCode() apperrors.ErrorCode {
	return apperrors.ErrCodeUnsupportedFormat
}

// ReadError wraps an I/O or PDF decoding failure.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

func (e *ReadError) ErrorCode() apperrors.ErrorCode {
	return apperrors.ErrCodeDocumentReadFailed
}

type Reader struct {
	log logger.Logger
}

func NewReader(log logger.Logger) *Reader {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Reader{log: log}
}

// CheckExtension validates path without touching the file system.
func CheckExtension(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedExtensions {
		if ext == s {
			return ext, nil
		}
	}
	return "", &UnsupportedFormatError{Path: path, Extension: filepath.Ext(path)}
}

// Read returns the text content of a .txt or .pdf file.
func (r *Reader) Read(path string) (string, error) {
	ext, err := CheckExtension(path)
	if err != nil {
		return "", err
	}

	var text string
	switch ext {
	case ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", &ReadError{Path: path, Err: err}
		}
		text = string(data)
	case ".pdf":
		text, err = readPDF(path)
		if err != nil {
			return "", &ReadError{Path: path, Err: err}
		}
	}

	r.log.Info("Read data from file", map[string]interface{}{
		"path":  path,
		"bytes": len(text),
	})
	return text, nil
}

func readPDF(path string) (string, error) {
	f, doc, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	plain, err := doc.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}
