package mcp

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/stickerjar/internal/config"
	"github.com/hpungsan/stickerjar/internal/db"
	"github.com/hpungsan/stickerjar/internal/jar"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"sticker", "jar"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"sticker_create": {
		def:     stickerCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStickerCreate },
	},
	"sticker_fetch": {
		def:     stickerFetchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStickerFetch },
	},
	"sticker_list": {
		def:     stickerListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStickerList },
	},
	"jar_check": {
		def:     jarCheckToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleJarCheck },
	},
	"jar_archive": {
		def:     jarArchiveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleJarArchive },
	},
	"jar_list": {
		def:     jarListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleJarList },
	},
	"jar_fetch": {
		def:     jarFetchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleJarFetch },
	},
	"jar_bodies": {
		def:     jarBodiesToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleJarBodies },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "jar_fetch" → "jar").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with the jar tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(j *jar.Jar, store *db.Store, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"stickerjar",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(j, store)

	// Build set of disabled tools: first expand types, then add individual tools
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(j *jar.Jar, store *db.Store, cfg *config.Config, version string) error {
	s := NewServer(j, store, cfg, version)
	return server.ServeStdio(s)
}
