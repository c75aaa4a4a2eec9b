package flow

import (
	"strconv"
	"strings"
)

// Lookup walks a decoded JSON value along path. String segments index
// objects and int segments index arrays. Any missing or mistyped segment
// yields a *ResponseShapeError naming the path walked so far.
func Lookup(v any, path ...any) (any, error) {
	cur := v
	for i, seg := range path {
		switch key := seg.(type) {
		case string:
			obj, ok := cur.(map[string]any)
			if !ok {
				return nil, shapeError(path[:i+1])
			}
			next, ok := obj[key]
			if !ok || next == nil {
				return nil, shapeError(path[:i+1])
			}
			cur = next
		case int:
			arr, ok := cur.([]any)
			if !ok || key < 0 || key >= len(arr) || arr[key] == nil {
				return nil, shapeError(path[:i+1])
			}
			cur = arr[key]
		default:
			return nil, shapeError(path[:i+1])
		}
	}
	return cur, nil
}

// LookupString is Lookup for a leaf that must be a string.
func LookupString(v any, path ...any) (string, error) {
	leaf, err := Lookup(v, path...)
	if err != nil {
		return "", err
	}
	s, ok := leaf.(string)
	if !ok {
		return "", shapeError(path)
	}
	return s, nil
}

func shapeError(path []any) *ResponseShapeError {
	var b strings.Builder
	for i, seg := range path {
		switch s := seg.(type) {
		case int:
			b.WriteString("[" + strconv.Itoa(s) + "]")
		case string:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(s)
		}
	}
	return &ResponseShapeError{Path: b.String()}
}
