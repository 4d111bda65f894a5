package bridge

// McpTransportKind selects how a McpServerConfig reaches its server
// (spec §4.7).
type McpTransportKind string

const (
	McpTransportHTTP  McpTransportKind = "http"
	McpTransportStdio McpTransportKind = "stdio"
)

// McpServerConfig describes one remote MCP tool server the Bridge Client
// should bring up at construction (spec §4.7, §6). HTTP servers set URL;
// STDIO servers set Command and optionally Args.
type McpServerConfig struct {
	Name    string           `yaml:"name"`
	Kind    McpTransportKind `yaml:"kind"`
	URL     string           `yaml:"url"`
	Command string           `yaml:"command"`
	Args    []string         `yaml:"args"`
}
