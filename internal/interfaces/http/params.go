// Package httpapi is the REST surface. Handlers translate HTTP to service
// calls and application errors back to status codes; query-parameter
// validation is strict, with 400 responses naming the offending field.
package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"forgetful-backend/internal/domain"
	appErrors "forgetful-backend/pkg/errors"
)

// pagination is the parsed limit/offset pair.
type pagination struct {
	Limit  int
	Offset int
}

// parsePagination applies the limit default (20) and bounds (1..100);
// offset defaults to 0 and must not be negative.
func parsePagination(r *http.Request) (pagination, error) {
	p := pagination{Limit: 20}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, appErrors.NewValidation("limit must be an integer")
		}
		if n < 1 {
			return p, appErrors.NewValidation("limit must be at least 1")
		}
		if n > 100 {
			return p, appErrors.NewValidation("limit must not exceed 100")
		}
		p.Limit = n
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, appErrors.NewValidation("offset must be an integer")
		}
		if n < 0 {
			return p, appErrors.NewValidation("offset must not be negative")
		}
		p.Offset = n
	}
	return p, nil
}

// queryInt parses an optional integer parameter.
func queryInt(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, appErrors.NewValidationf("%s must be an integer", name)
	}
	return &n, nil
}

// queryInt64 parses an optional int64 parameter.
func queryInt64(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, appErrors.NewValidationf("%s must be an integer", name)
	}
	return &n, nil
}

// queryBool parses an optional boolean parameter.
func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, appErrors.NewValidationf("%s must be a boolean", name)
	}
	return b, nil
}

// queryCSV splits a comma-separated parameter, dropping empty entries.
func queryCSV(r *http.Request, name string) []string {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// queryNodeTypes parses and validates the node_types filter.
func queryNodeTypes(r *http.Request) ([]domain.NodeType, error) {
	var types []domain.NodeType
	for _, raw := range queryCSV(r, "node_types") {
		t := domain.NodeType(raw)
		if !domain.IsValidNodeType(t) {
			return nil, appErrors.NewValidationf("node_types contains unknown type %q", raw)
		}
		types = append(types, t)
	}
	return types, nil
}

// pathID parses the chi URL parameter as a positive int64.
func pathID(raw, name string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 1 {
		return 0, appErrors.NewValidationf("%s must be a positive integer", name)
	}
	return n, nil
}
