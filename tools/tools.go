// Package tools provides the builtin tools a BridgeClient caller can
// register alongside provider-specific or MCP-discovered tools (spec §4.6).
//
// Available builtin tools:
//   - echo: round-trips its input, used to exercise the tool execution
//     loop end to end (spec §4.6, scenarios S4/S6)
//   - datetime: parse, format, and manipulate dates and times
//   - filesystem: read/write files and list directories, with path
//     traversal prevention
//   - http: make HTTP requests (GET, POST, PUT, DELETE)
//   - math: evaluate expressions, compute statistics, convert units
//
// Usage:
//
//	registry := bridge.NewToolRegistry()
//	tools.RegisterAll(registry)
package tools

import (
	"sort"

	"github.com/deepbridge/llm-bridge/bridge"
)

// builtin pairs a tool's definition with its handler so the registry
// receives both halves from a single lookup.
type builtin struct {
	def     bridge.ToolDefinition
	handler bridge.ToolHandler
}

// builtinTools is the full catalogue of tools this package ships, keyed
// by name. A caller opts into a subset via Register or the whole set via
// RegisterAll.
var builtinTools = map[string]builtin{
	"echo":       {def: echoDefinition, handler: echoHandler},
	"datetime":   {def: dateTimeDefinition, handler: dateTimeHandler},
	"filesystem": {def: fileSystemDefinition, handler: fileSystemHandler},
	"http":       {def: httpRequestDefinition, handler: httpRequestHandler},
	"math":       {def: mathDefinition, handler: mathHandler},
}

// Names returns the builtin tool names in this package, sorted.
func Names() []string {
	names := make([]string, 0, len(builtinTools))
	for name := range builtinTools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds the named builtins to registry, replacing any
// already-registered tool with the same name.
func Register(registry *bridge.ToolRegistry, names ...string) error {
	for _, name := range names {
		b, ok := builtinTools[name]
		if !ok {
			return bridge.NewValidationError("tools: unknown builtin tool " + name)
		}
		if err := registry.Register(b.def, b.handler, true); err != nil {
			return err
		}
	}
	return nil
}

// RegisterAll adds every builtin tool in this package to registry.
func RegisterAll(registry *bridge.ToolRegistry) error {
	return Register(registry, Names()...)
}
