package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"forgetful-backend/internal/auth"
	"forgetful-backend/internal/tools"
	"forgetful-backend/pkg/api"
	"forgetful-backend/pkg/observability"
)

// ToolsHandler exposes the three meta-tools over HTTP. The session scope
// rides in the X-Session-Scope header; everything else is the dispatcher's
// concern.
type ToolsHandler struct {
	dispatcher *tools.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewToolsHandler wires the handler. metrics may be nil.
func NewToolsHandler(dispatcher *tools.Dispatcher, metrics *observability.Metrics, logger *zap.Logger) *ToolsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolsHandler{dispatcher: dispatcher, metrics: metrics, logger: logger.Named("tools_handler")}
}

// toolErrorStatus maps tool error codes onto HTTP statuses.
func toolErrorStatus(code string) int {
	switch code {
	case tools.CodeNotFound:
		return http.StatusNotFound
	case tools.CodeValidation:
		return http.StatusBadRequest
	case tools.CodePermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeToolError(w http.ResponseWriter, terr *tools.ToolError) {
	api.Success(w, toolErrorStatus(terr.Code), terr)
}

// discoverRequest optionally narrows discovery to one category.
type discoverRequest struct {
	Category string `json:"category"`
}

// Discover handles POST /api/v1/tools/discover.
func (h *ToolsHandler) Discover(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	result, terr := h.dispatcher.Discover(r.Context(), auth.SessionScope(r), req.Category)
	if terr != nil {
		writeToolError(w, terr)
		return
	}
	api.Success(w, http.StatusOK, result)
}

// howToUseRequest names the tool to describe.
type howToUseRequest struct {
	ToolName string `json:"tool_name"`
}

// HowToUse handles POST /api/v1/tools/how_to_use.
func (h *ToolsHandler) HowToUse(w http.ResponseWriter, r *http.Request) {
	var req howToUseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tool, terr := h.dispatcher.HowToUse(r.Context(), auth.SessionScope(r), req.ToolName)
	if terr != nil {
		writeToolError(w, terr)
		return
	}
	api.Success(w, http.StatusOK, tool)
}

// executeRequest names the tool and carries its arguments.
type executeRequest struct {
	ToolName  string                 `json:"tool_name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Execute handles POST /api/v1/tools/execute.
func (h *ToolsHandler) Execute(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, terr := h.dispatcher.Execute(r.Context(), userID, auth.SessionScope(r), req.ToolName, req.Arguments)
	if terr != nil {
		if h.metrics != nil {
			h.metrics.ToolExecutions.WithLabelValues(req.ToolName, "error").Inc()
		}
		writeToolError(w, terr)
		return
	}
	if h.metrics != nil {
		h.metrics.ToolExecutions.WithLabelValues(req.ToolName, "ok").Inc()
	}
	api.Success(w, http.StatusOK, map[string]interface{}{"result": result})
}
