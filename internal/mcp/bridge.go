package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mpetralia/anima/internal/tools"
)

// sanitizeRe matches characters that are not lowercase alphanumeric or
// underscore.
var sanitizeRe = regexp.MustCompile(`[^a-z0-9_]`)

// BridgeTools discovers a server's tools and registers them on the
// registry. Tool names are namespaced as "mcp_{server}_{tool}" to avoid
// collisions with the built-ins. Returns the number of tools registered.
func BridgeTools(ctx context.Context, client *Client, registry *tools.Registry, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	defs, err := client.ListTools(ctx)
	if err != nil {
		return 0, fmt.Errorf("list tools from %s: %w", client.Name(), err)
	}

	for _, td := range defs {
		name := ToolName(client.Name(), td.Name)
		registry.Register(bridgeTool(client, name, td))
		logger.Debug("bridged external tool",
			"server", client.Name(),
			"tool", td.Name,
			"registered_as", name,
		)
	}

	return len(defs), nil
}

// ToolName builds the namespaced registry name for an external tool.
func ToolName(serverName, toolName string) string {
	return fmt.Sprintf("mcp_%s_%s", sanitize(serverName), sanitize(toolName))
}

// bridgeTool wraps an external tool as a registry tool that proxies
// calls to the server. Failures come back as errors; the orchestrator
// converts them to tool-result messages and continues.
func bridgeTool(client *Client, name string, td ToolDefinition) *tools.Tool {
	mcpName := td.Name

	return &tools.Tool{
		Name:        name,
		Description: td.Description,
		Parameters:  td.InputSchema,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return client.CallTool(ctx, mcpName, args)
		},
	}
}

// sanitize lowercases a name and squeezes everything that is not
// alphanumeric into single underscores.
func sanitize(name string) string {
	s := strings.ToLower(name)
	s = sanitizeRe.ReplaceAllString(s, "_")
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return strings.Trim(s, "_")
}
