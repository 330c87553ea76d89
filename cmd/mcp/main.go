// Command mcp runs the MCP server over stdio, exposing the three meta-tools.
// The server is single-user: the identity comes from FORGETFUL_USER (an
// identity-provider subject, auto-provisioned on first use) and the session
// scope from FORGETFUL_SESSION_SCOPES.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	mcpserver "github.com/ThinkInAIXYZ/go-mcp/server"
	"github.com/ThinkInAIXYZ/go-mcp/transport"
	"github.com/google/uuid"

	"forgetful-backend/internal/app"
	"forgetful-backend/internal/config"
	"forgetful-backend/internal/domain"
	"forgetful-backend/internal/tools"
	appErrors "forgetful-backend/pkg/errors"
)

const serverVersion = "1.0.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	c, err := app.NewContainer(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	userID, err := resolveUser(c)
	if err != nil {
		return err
	}
	sessionScope := strings.Join(strings.Fields(os.Getenv("FORGETFUL_SESSION_SCOPES")), ",")

	srv, err := mcpserver.NewServer(
		transport.NewStdioServerTransport(),
		mcpserver.WithServerInfo(protocol.Implementation{
			Name:    "forgetful",
			Version: serverVersion,
		}),
	)
	if err != nil {
		return fmt.Errorf("create mcp server: %w", err)
	}

	m := &metaTools{
		dispatcher:   c.Dispatcher,
		userID:       userID,
		sessionScope: sessionScope,
	}
	if err := m.register(srv); err != nil {
		return err
	}

	c.Logger.Sugar().Infow("mcp server starting",
		"backend", cfg.Storage.Backend, "tools", c.Registry.Len())
	return srv.Run()
}

// resolveUser looks up or provisions the user named by FORGETFUL_USER.
func resolveUser(c *app.Container) (string, error) {
	externalID := os.Getenv("FORGETFUL_USER")
	if externalID == "" {
		externalID = "default"
	}
	ctx := context.Background()
	u, err := c.Repository.GetUserByExternalID(ctx, externalID)
	if err == nil {
		return u.ID, nil
	}
	if !appErrors.IsNotFound(err) {
		return "", err
	}
	created, err := c.Repository.CreateUser(ctx, &domain.User{
		ID:         uuid.NewString(),
		ExternalID: externalID,
	})
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// metaTools adapts the dispatcher onto the MCP tool protocol.
type metaTools struct {
	dispatcher   *tools.Dispatcher
	userID       string
	sessionScope string
}

// discoverInput optionally narrows discovery to one category.
type discoverInput struct {
	Category string `json:"category,omitempty" description:"restrict the listing to one category"`
}

// howToUseInput names the tool to describe.
type howToUseInput struct {
	ToolName string `json:"tool_name" description:"name of the tool to describe" required:"true"`
}

// executeInput names the tool and carries its arguments.
type executeInput struct {
	ToolName  string                 `json:"tool_name" description:"name of the tool to invoke" required:"true"`
	Arguments map[string]interface{} `json:"arguments,omitempty" description:"tool arguments as an object"`
}

func (m *metaTools) register(srv *mcpserver.Server) error {
	discover, err := protocol.NewTool(tools.MetaDiscover,
		"List the memory tools available in this session, grouped by category. "+
			"Call this first to learn what the store can do.", discoverInput{})
	if err != nil {
		return err
	}
	howToUse, err := protocol.NewTool(tools.MetaHowToUse,
		"Describe one tool in detail: parameters, JSON schema, and what it returns.", howToUseInput{})
	if err != nil {
		return err
	}
	execute, err := protocol.NewTool(tools.MetaExecute,
		"Invoke a tool by name with a JSON object of arguments. "+
			"Use discover and how_to_use to learn the available names and shapes.", executeInput{})
	if err != nil {
		return err
	}

	srv.RegisterTool(discover, m.handleDiscover)
	srv.RegisterTool(howToUse, m.handleHowToUse)
	srv.RegisterTool(execute, m.handleExecute)
	return nil
}

func (m *metaTools) handleDiscover(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input discoverInput
	if len(req.RawArguments) > 0 {
		if err := json.Unmarshal(req.RawArguments, &input); err != nil {
			return nil, fmt.Errorf("parse arguments: %w", err)
		}
	}
	result, terr := m.dispatcher.Discover(ctx, m.sessionScope, input.Category)
	if terr != nil {
		return errorResult(terr)
	}
	return jsonResult(result)
}

func (m *metaTools) handleHowToUse(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input howToUseInput
	if err := json.Unmarshal(req.RawArguments, &input); err != nil {
		return nil, fmt.Errorf("parse arguments: %w", err)
	}
	tool, terr := m.dispatcher.HowToUse(ctx, m.sessionScope, input.ToolName)
	if terr != nil {
		return errorResult(terr)
	}
	return jsonResult(tool)
}

func (m *metaTools) handleExecute(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var input executeInput
	if err := json.Unmarshal(req.RawArguments, &input); err != nil {
		return nil, fmt.Errorf("parse arguments: %w", err)
	}
	result, terr := m.dispatcher.Execute(ctx, m.userID, m.sessionScope, input.ToolName, input.Arguments)
	if terr != nil {
		return errorResult(terr)
	}
	return jsonResult(result)
}

// jsonResult marshals a successful payload into a text content block.
func jsonResult(v interface{}) (*protocol.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return protocol.NewCallToolResult([]protocol.Content{
		&protocol.TextContent{Type: "text", Text: string(data)},
	}, false), nil
}

// errorResult carries the structured tool error to the client with the error
// flag set, so agents can read the code and adjust.
func errorResult(terr *tools.ToolError) (*protocol.CallToolResult, error) {
	data, err := json.Marshal(terr)
	if err != nil {
		return nil, err
	}
	return protocol.NewCallToolResult([]protocol.Content{
		&protocol.TextContent{Type: "text", Text: string(data)},
	}, true), nil
}
