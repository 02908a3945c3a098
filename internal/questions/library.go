// Package questions holds the static follow-up question library.
package questions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "treatment-review/internal/common/errors"
)

// MatchPolicy decides what happens when several keys match a complaint.
type MatchPolicy string

const (
	// MatchFirst returns the first matching key in file order.
	MatchFirst MatchPolicy = "first"
	// MatchStrict fails when more than one key matches.
	MatchStrict MatchPolicy = "strict"
)

type entry struct {
	Keyword   string
	Questions []string
}

// Library maps complaint keywords to fixed question lists. It keeps the key
// order of the source document and is read-only after loading.
type Library struct {
	entries []entry
	policy  MatchPolicy
}

// AmbiguousMatchError is returned under MatchStrict when several keys match.
type AmbiguousMatchError struct {
	ChiefComplaint string
	Keywords       []string
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("chief complaint %q matches several library keys: %s", e.ChiefComplaint, strings.Join(e.Keywords, ", "))
}

func (e *AmbiguousMatchError) ErrorCode() apperrors.ErrorCode {
	return apperrors.ErrCodeAmbiguousLibraryMatch
}

// LoadError reports a library file that could not be used.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load question library %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) ErrorCode() apperrors.ErrorCode {
	return apperrors.ErrCodeLibraryLoadFailed
}

// LoadFile reads a library from a JSON file.
func LoadFile(path string, policy MatchPolicy) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	lib, err := Parse(data, policy)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return lib, nil
}

// Parse decodes a JSON object of keyword to question list, keeping key order.
// Duplicate keys and empty question lists are rejected.
func Parse(data []byte, policy MatchPolicy) (*Library, error) {
	switch policy {
	case "":
		policy = MatchFirst
	case MatchFirst, MatchStrict:
	default:
		return nil, fmt.Errorf("unknown match policy %q", policy)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read library: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("library must be a JSON object")
	}

	lib := &Library{policy: policy}
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read library key: %w", err)
		}
		keyword := tok.(string) // object keys are always strings

		var qs []string
		if err := dec.Decode(&qs); err != nil {
			return nil, fmt.Errorf("library entry %q: %w", keyword, err)
		}
		if keyword == "" {
			return nil, fmt.Errorf("library has an empty keyword")
		}
		if seen[keyword] {
			return nil, fmt.Errorf("library entry %q is duplicated", keyword)
		}
		if len(qs) == 0 {
			return nil, fmt.Errorf("library entry %q has no questions", keyword)
		}
		seen[keyword] = true
		lib.entries = append(lib.entries, entry{Keyword: keyword, Questions: qs})
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read library: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("library has trailing data")
	}
	return lib, nil
}

// Match finds the questions for a chief complaint. A key matches when it is a
// case-sensitive substring of the complaint. ok is false when nothing matches.
func (l *Library) Match(chiefComplaint string) (keyword string, questions []string, ok bool, err error) {
	var matched []entry
	for _, e := range l.entries {
		if strings.Contains(chiefComplaint, e.Keyword) {
			if l.policy == MatchFirst {
				return e.Keyword, copyStrings(e.Questions), true, nil
			}
			matched = append(matched, e)
		}
	}

	switch len(matched) {
	case 0:
		return "", nil, false, nil
	case 1:
		return matched[0].Keyword, copyStrings(matched[0].Questions), true, nil
	default:
		keys := make([]string, len(matched))
		for i, m := range matched {
			keys[i] = m.Keyword
		}
		return "", nil, false, &AmbiguousMatchError{ChiefComplaint: chiefComplaint, Keywords: keys}
	}
}

// Keywords returns the library keys in file order.
func (l *Library) Keywords() []string {
	out := make([]string, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Keyword
	}
	return out
}

func (l *Library) Len() int { return len(l.entries) }

func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
