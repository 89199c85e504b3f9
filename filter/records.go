package filter

import (
	"errors"
	"fmt"
	"maps"
)

// envelopeKeys are the members a list payload may wrap its records in
var envelopeKeys = []string{"data", "results", "items", "records"}

// Records extracts the record list from a decoded list payload. A bare
// array is used as is, an object is searched for a wrapped array and
// otherwise treated as a single record.
func Records(payload any) ([]any, error) {
	switch p := payload.(type) {
	case []any:
		return p, nil
	case map[string]any:
		if key, ok := envelopeKey(p); ok {
			return p[key].([]any), nil
		}
		return []any{p}, nil
	}
	return nil, ErrNoRecords
}

func envelopeKey(m map[string]any) (string, bool) {
	for _, key := range envelopeKeys {
		if _, ok := m[key].([]any); ok {
			return key, true
		}
	}
	return "", false
}

// Apply evaluates f against every record and returns the ones that match.
// Records that fail to evaluate are left out and reported in the joined error.
func Apply(f Filter, records []any) ([]any, error) {
	var (
		matched = make([]any, 0, len(records))
		errs    []error
	)

	for i, item := range records {
		record, ok := item.(map[string]any)
		if !ok {
			errs = append(errs, &EvaluationError{
				Expression: expressionOf(f),
				Index:      i,
				Err:        fmt.Errorf("record is %T, not an object", item),
			})
			continue
		}

		keep, err := f.Evaluate(record)
		if err != nil {
			errs = append(errs, &EvaluationError{
				Expression: expressionOf(f),
				Index:      i,
				Err:        err,
			})
			continue
		}
		if keep {
			matched = append(matched, record)
		}
	}

	return matched, errors.Join(errs...)
}

// Payload filters a list payload and returns it in the same shape, keeping
// any envelope members such as pagination metadata.
func Payload(f Filter, payload any) (any, error) {
	records, err := Records(payload)
	if err != nil {
		return nil, err
	}

	matched, evalErr := Apply(f, records)

	m, ok := payload.(map[string]any)
	if !ok {
		return matched, evalErr
	}

	key, wrapped := envelopeKey(m)
	if !wrapped {
		if len(matched) == 0 {
			return nil, evalErr
		}
		return m, evalErr
	}

	out := maps.Clone(m)
	out[key] = matched
	return out, evalErr
}

func expressionOf(f Filter) string {
	if cf, ok := f.(CompiledFilter); ok {
		return cf.Expression()
	}
	return ""
}
