package tools

import (
	"context"

	"go.uber.org/zap"

	appErrors "forgetful-backend/pkg/errors"
)

// Meta-tool names. They are always permitted, in every scope.
const (
	MetaDiscover = "discover_forgetful_tools"
	MetaHowToUse = "how_to_use_forgetful_tool"
	MetaExecute  = "execute_forgetful_tool"
)

// Error codes surfaced to tool callers.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeValidation       = "VALIDATION_ERROR"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeInternal         = "INTERNAL_ERROR"
)

// ToolError is the structured error shape every tool failure maps to.
type ToolError struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	RequiredScope string `json:"required_scope,omitempty"`
}

// Error implements error.
func (e *ToolError) Error() string { return e.Code + ": " + e.Message }

// ToolSummary is the discovery listing entry: metadata minus the JSON Schema
// and extended examples.
type ToolSummary struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Mutates     bool    `json:"mutates"`
	Params      []Param `json:"parameters"`
	Returns     string  `json:"returns"`
}

// DiscoverResult groups permitted tools per category.
type DiscoverResult struct {
	Categories map[Category][]ToolSummary `json:"categories"`
	Total      int                        `json:"total"`
}

// Dispatcher evaluates permissions and routes meta-tool calls.
type Dispatcher struct {
	reg           *Registry
	instanceScope string
	logger        *zap.Logger
}

// NewDispatcher wires the dispatcher with the server's instance scope.
func NewDispatcher(reg *Registry, instanceScope string, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{reg: reg, instanceScope: instanceScope, logger: logger.Named("tools")}
}

// permitted resolves the session's effective tool set. A bad scope string is
// the caller's fault, not the server's.
func (d *Dispatcher) permitted(sessionScope string) (map[string]bool, *ToolError) {
	set, err := EffectivePermittedTools(d.instanceScope, sessionScope, d.reg)
	if err != nil {
		return nil, &ToolError{Code: CodeValidation, Message: err.Error()}
	}
	return set, nil
}

// Discover lists permitted tools per category. An unknown category filter is
// a validation error; an empty one lists everything permitted.
func (d *Dispatcher) Discover(_ context.Context, sessionScope string, category string) (*DiscoverResult, *ToolError) {
	set, terr := d.permitted(sessionScope)
	if terr != nil {
		return nil, terr
	}

	cats := AllCategories
	if category != "" {
		if !IsValidCategory(Category(category)) {
			return nil, &ToolError{Code: CodeValidation,
				Message: "unknown category " + category + ": valid categories are " + categoryList()}
		}
		cats = []Category{Category(category)}
	}

	result := &DiscoverResult{Categories: make(map[Category][]ToolSummary)}
	for _, c := range cats {
		for _, t := range d.reg.ByCategory(c) {
			if !set[t.Name] {
				continue
			}
			result.Categories[c] = append(result.Categories[c], ToolSummary{
				Name:        t.Name,
				Description: t.Description,
				Mutates:     t.Mutates,
				Params:      t.Params,
				Returns:     t.Returns,
			})
			result.Total++
		}
	}
	return result, nil
}

// HowToUse returns the full metadata, JSON Schema included. Unknown and
// unpermitted tools are indistinguishable to the caller.
func (d *Dispatcher) HowToUse(_ context.Context, sessionScope string, toolName string) (*Tool, *ToolError) {
	set, terr := d.permitted(sessionScope)
	if terr != nil {
		return nil, terr
	}
	t, ok := d.reg.Get(toolName)
	if !ok || !set[toolName] {
		return nil, &ToolError{Code: CodeNotFound, Message: "unknown tool " + toolName}
	}
	return t, nil
}

// Execute invokes a permitted tool with the caller's arguments and ambient
// user identity. Registry errors surface as structured tool errors.
func (d *Dispatcher) Execute(ctx context.Context, userID, sessionScope, toolName string, args map[string]interface{}) (interface{}, *ToolError) {
	set, terr := d.permitted(sessionScope)
	if terr != nil {
		return nil, terr
	}
	t, ok := d.reg.Get(toolName)
	if !ok {
		return nil, &ToolError{Code: CodeNotFound, Message: "unknown tool " + toolName}
	}
	if !set[toolName] {
		return nil, &ToolError{
			Code:          CodePermissionDenied,
			Message:       "tool " + toolName + " requires scope " + t.RequiredScope(),
			RequiredScope: t.RequiredScope(),
		}
	}

	if args == nil {
		args = map[string]interface{}{}
	}
	out, err := t.Handler(ctx, userID, args)
	if err != nil {
		return nil, translateError(err)
	}
	return out, nil
}

// translateError maps application errors onto the tool error codes.
func translateError(err error) *ToolError {
	switch {
	case appErrors.IsValidation(err), appErrors.IsAlreadyLinked(err):
		return &ToolError{Code: CodeValidation, Message: appErrors.Message(err)}
	case appErrors.IsNotFound(err):
		return &ToolError{Code: CodeNotFound, Message: appErrors.Message(err)}
	case appErrors.IsPermissionDenied(err):
		return &ToolError{
			Code:          CodePermissionDenied,
			Message:       appErrors.Message(err),
			RequiredScope: appErrors.RequiredScope(err),
		}
	}
	return &ToolError{Code: CodeInternal, Message: "internal error"}
}
