package grading

import (
	"github.com/adaptiq/adaptiq-engine/internal/quiz"
)

// MatchResult is the outcome of comparing one submitted answer against a
// question's answer key.
type MatchResult struct {
	Exact      bool    `json:"exact"`
	Similarity float64 `json:"similarity"` // 0..1
}

// Match compares a submitted response against the reference answers for the
// given question type. It never fails: empty or unparseable submissions
// yield similarity 0.
//
// Choice-style questions (multiple_choice, true_false, drag_drop) are an
// equality check after normalization; when the key holds multiple entries
// the comparison is order-insensitive set equality. code_completion is
// normalized equality against any key entry. short_answer earns a graded
// similarity: the maximum normalized-edit-distance similarity over all
// acceptable references.
func Match(response interface{}, reference []string, questionType string) MatchResult {
	if len(reference) == 0 {
		return MatchResult{}
	}
	switch questionType {
	case quiz.TypeShortAnswer:
		submitted, ok := toString(response)
		if !ok {
			return MatchResult{}
		}
		best := 0.0
		norm := normalize(submitted)
		for _, ref := range reference {
			if sim := similarity(norm, normalize(ref)); sim > best {
				best = sim
			}
		}
		return MatchResult{Exact: best == 1, Similarity: best}

	case quiz.TypeDragDrop:
		submitted, ok := toStringSlice(response)
		if !ok {
			return MatchResult{}
		}
		if setEqual(toNormSet(submitted), toNormSet(reference)) {
			return MatchResult{Exact: true, Similarity: 1}
		}
		return MatchResult{}

	default:
		// multiple_choice, true_false, code_completion; also the fallback
		// for unknown types, which degrade to strict matching.
		submitted, ok := toStringSlice(response)
		if !ok || len(submitted) == 0 {
			return MatchResult{}
		}
		multiSelect := len(submitted) > 1 ||
			(questionType == quiz.TypeMultipleChoice && len(reference) > 1)
		if multiSelect {
			if setEqual(toNormSet(submitted), toNormSet(reference)) {
				return MatchResult{Exact: true, Similarity: 1}
			}
			return MatchResult{}
		}
		norm := normalize(submitted[0])
		if norm == "" {
			return MatchResult{}
		}
		for _, ref := range reference {
			if norm == normalize(ref) {
				return MatchResult{Exact: true, Similarity: 1}
			}
		}
		return MatchResult{}
	}
}

func toString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []string:
		if len(t) == 1 {
			return t[0], true
		}
	case []interface{}:
		if len(t) == 1 {
			if s, ok := t[0].(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

func toStringSlice(v interface{}) ([]string, bool) {
	switch t := v.(type) {
	case string:
		return []string{t}, true
	case []string:
		return t, true
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func toNormSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		if n := normalize(s); n != "" {
			m[n] = struct{}{}
		}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
