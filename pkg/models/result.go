package models

import "fmt"

// ResultItem is one sanitized execution result: either an attribute map
// produced from an SDK object (Ok) or a normalized error record (Err).
// Exactly one of the two is set.
type ResultItem struct {
	Attrs map[string]any `json:"attrs,omitempty"`
	Err   *ResultError   `json:"error,omitempty"`
}

// ResultError is the normalized error shape carried inside a result list.
type ResultError struct {
	Message      string `json:"error"`
	OriginalType string `json:"original_type,omitempty"`
	Value        string `json:"value,omitempty"`
}

// OkItem wraps an attribute map as a successful result.
func OkItem(attrs map[string]any) ResultItem {
	return ResultItem{Attrs: attrs}
}

// ValueItem coerces a bare primitive into the {value, type} map shape.
func ValueItem(v any) ResultItem {
	return ResultItem{Attrs: map[string]any{
		"value": v,
		"type":  fmt.Sprintf("%T", v),
	}}
}

// ErrorItem wraps an error as a result entry without aborting the batch.
func ErrorItem(err error, originalType string) ResultItem {
	if err == nil {
		return ResultItem{Err: &ResultError{Message: "unknown error", OriginalType: originalType}}
	}
	return ResultItem{Err: &ResultError{
		Message:      err.Error(),
		OriginalType: originalType,
		Value:        fmt.Sprintf("%v", err),
	}}
}

// IsError reports whether the item carries an error record.
func (r ResultItem) IsError() bool { return r.Err != nil }

// AsMap flattens the item into the single attribute-map shape the
// presentation layer consumes.
func (r ResultItem) AsMap() map[string]any {
	if r.Err != nil {
		m := map[string]any{"error": r.Err.Message}
		if r.Err.OriginalType != "" {
			m["original_type"] = r.Err.OriginalType
		}
		if r.Err.Value != "" {
			m["value"] = r.Err.Value
		}
		return m
	}
	return r.Attrs
}

// CountResults splits a result list into successes and errors.
func CountResults(items []ResultItem) (ok, failed int) {
	for _, it := range items {
		if it.IsError() {
			failed++
		} else {
			ok++
		}
	}
	return ok, failed
}
