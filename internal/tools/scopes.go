package tools

import (
	"strings"

	appErrors "forgetful-backend/pkg/errors"
)

// ResolvePermittedTools expands a comma-separated scope string into the set
// of tool names it permits. Token forms: `*`, `read`, `write`,
// `read:<category>`, `write:<category>`. Unknown actions or categories are
// rejected with an error naming the valid set.
func ResolvePermittedTools(scopes string, reg *Registry) (map[string]bool, error) {
	permitted := make(map[string]bool)
	for _, raw := range strings.Split(scopes, ",") {
		token := strings.TrimSpace(raw)
		if token == "" {
			continue
		}
		if token == "*" {
			for _, t := range reg.All() {
				permitted[t.Name] = true
			}
			return permitted, nil
		}

		action := token
		category := ""
		if idx := strings.Index(token, ":"); idx >= 0 {
			action = token[:idx]
			category = token[idx+1:]
		}
		if action != "read" && action != "write" {
			return nil, appErrors.NewValidationf(
				"unknown scope action %q in %q: valid actions are read, write", action, token)
		}
		if category != "" && !IsValidCategory(Category(category)) {
			return nil, appErrors.NewValidationf(
				"unknown scope category %q in %q: valid categories are %s",
				category, token, categoryList())
		}

		wantMutates := action == "write"
		for _, t := range reg.All() {
			if t.Mutates != wantMutates {
				continue
			}
			if category != "" && t.Category != Category(category) {
				continue
			}
			permitted[t.Name] = true
		}
	}
	return permitted, nil
}

// EffectivePermittedTools intersects the server-configured instance scope
// with the session's scope claim. An empty session scope means the instance
// bound applies alone.
func EffectivePermittedTools(instanceScope, sessionScope string, reg *Registry) (map[string]bool, error) {
	instance, err := ResolvePermittedTools(instanceScope, reg)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(sessionScope) == "" {
		return instance, nil
	}
	session, err := ResolvePermittedTools(sessionScope, reg)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for name := range instance {
		if session[name] {
			out[name] = true
		}
	}
	return out, nil
}

func categoryList() string {
	names := make([]string, len(AllCategories))
	for i, c := range AllCategories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
