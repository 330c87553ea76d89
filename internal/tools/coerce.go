package tools

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	appErrors "forgetful-backend/pkg/errors"
)

// LLM callers are sloppy with list arguments: a parameter documented as
// []string arrives as a JSON array, a bare scalar, a comma-joined string, or
// a bracketed string. The coercion helpers accept all four shapes.

// CoerceStringList normalizes a list-of-strings argument.
func CoerceStringList(field string, v interface{}) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case []string:
		return t, nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, appErrors.NewValidationf("%s entries must be strings", field)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		return splitListString(t), nil
	}
	return nil, appErrors.NewValidationf("%s must be a list of strings", field)
}

// CoerceInt64List normalizes a list-of-IDs argument.
func CoerceInt64List(field string, v interface{}) ([]int64, error) {
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case []int64:
		return t, nil
	case []interface{}:
		out := make([]int64, 0, len(t))
		for _, item := range t {
			n, err := toInt64(item)
			if err != nil {
				return nil, appErrors.NewValidationf("%s entries must be integers", field)
			}
			out = append(out, n)
		}
		return out, nil
	case float64, int, int64, json.Number:
		n, err := toInt64(t)
		if err != nil {
			return nil, appErrors.NewValidationf("%s must be an integer or list of integers", field)
		}
		return []int64{n}, nil
	case string:
		parts := splitListString(t)
		out := make([]int64, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.ParseInt(p, 10, 64)
			if err != nil {
				return nil, appErrors.NewValidationf("%s entries must be integers, got %q", field, p)
			}
			out = append(out, n)
		}
		return out, nil
	}
	return nil, appErrors.NewValidationf("%s must be a list of integers", field)
}

// CoerceString reads a required-or-optional string argument.
func CoerceString(field string, v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", appErrors.NewValidationf("%s must be a string", field)
	}
	return s, nil
}

// CoerceInt reads an integer argument; JSON numbers arrive as float64.
func CoerceInt(field string, v interface{}) (int, bool, error) {
	if v == nil {
		return 0, false, nil
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, false, appErrors.NewValidationf("%s must be an integer", field)
	}
	return int(n), true, nil
}

// CoerceInt64 reads an ID argument.
func CoerceInt64(field string, v interface{}) (int64, bool, error) {
	if v == nil {
		return 0, false, nil
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, false, appErrors.NewValidationf("%s must be an integer", field)
	}
	return n, true, nil
}

// CoerceBool reads a boolean argument, accepting string forms.
func CoerceBool(field string, v interface{}) (bool, bool, error) {
	if v == nil {
		return false, false, nil
	}
	switch t := v.(type) {
	case bool:
		return t, true, nil
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			return false, false, appErrors.NewValidationf("%s must be a boolean", field)
		}
		return b, true, nil
	}
	return false, false, appErrors.NewValidationf("%s must be a boolean", field)
}

func toInt64(v interface{}) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		n := int64(t)
		if float64(n) != t {
			return 0, fmt.Errorf("not an integer: %v", t)
		}
		return n, nil
	case json.Number:
		return t.Int64()
	case string:
		return strconv.ParseInt(t, 10, 64)
	}
	return 0, fmt.Errorf("not an integer: %T", v)
}

// splitListString handles "a,b,c" and "[a,b,c]".
func splitListString(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.Trim(strings.TrimSpace(p), `"'`))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
