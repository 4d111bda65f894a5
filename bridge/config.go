package bridge

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimeoutMs = 30000
	minTimeoutMs     = 1000
	maxTimeoutMs     = 300000
	defaultModelID   = "gpt-4o-mini"
)

// ModelSeedMode selects how the Model Registry is populated at
// construction (spec §6).
type ModelSeedMode string

const (
	ModelSeedBuiltin ModelSeedMode = "builtin"
	ModelSeedNone    ModelSeedMode = "none"
	ModelSeedCustom  ModelSeedMode = "custom"
)

// ModelSeed configures Model Registry seeding. Mode selects the strategy;
// in custom mode the registry is seeded from Catalog only (spec §4.1,
// §6). Path records the path of a YAML `modelSeed: {path: ...}` block,
// but no catalog is read from it, and a YAML `modelSeed: {data: ...}`
// block is not parsed into Catalog.
type ModelSeed struct {
	Mode    ModelSeedMode
	Catalog []ModelCatalogEntry
	Path    string
}

// RateLimitScope names the granularity a RateLimitPolicy applies at
// (spec §6).
type RateLimitScope string

const (
	ScopeGlobal            RateLimitScope = "global"
	ScopeProvider          RateLimitScope = "provider"
	ScopeProviderModel     RateLimitScope = "provider:model"
	ScopeProviderModelKey  RateLimitScope = "provider:model:key"
)

// RateLimitPolicy configures the token-bucket limiter applied to outbound
// provider calls (spec §6).
type RateLimitPolicy struct {
	Enabled bool            `yaml:"enabled"`
	MaxRPS  float64         `yaml:"maxRps"`
	Burst   int             `yaml:"burst"`
	Scope   RateLimitScope  `yaml:"scope"`
}

// ToolsConfig configures the Tool Registry/Router/MCP bring-up
// (spec §4.6, §4.7, §6).
type ToolsConfig struct {
	Enabled            bool             `yaml:"enabled"`
	BuiltinTools       []string         `yaml:"builtinTools"`
	ExecutionTimeoutMs int64            `yaml:"executionTimeoutMs"`
	MaxConcurrentTools int              `yaml:"maxConcurrentTools"`
	McpServers         []McpServerConfig `yaml:"mcpServers"`
}

// BridgeClientConfig is the validated, frozen configuration a
// BridgeClient is constructed from (spec §3, §4.1). RawProviders holds
// the caller's as-supplied flat-or-nested shape prior to Validate;
// Providers holds the flattened, validated result.
type BridgeClientConfig struct {
	Timeout         int64                              `yaml:"timeout"`
	RawProviders    map[string]map[string]interface{}  `yaml:"providers"`
	Providers       map[string]map[string]interface{}  `yaml:"-"`
	DefaultProvider string                              `yaml:"defaultProvider"`
	DefaultModel    string                              `yaml:"defaultModel"`
	ModelSeed       ModelSeed                           `yaml:"-"`
	Options         map[string]interface{}              `yaml:"options"`
	RegistryOptions map[string]interface{}              `yaml:"registryOptions"`
	ToolsConfig     *ToolsConfig                        `yaml:"tools"`
	RateLimitPolicy *RateLimitPolicy                     `yaml:"rateLimitPolicy"`

	validated bool
}

// rawConfigDoc mirrors the YAML surface before flattening decisions are
// applied, distinguishing flat ({type: opts}) from nested
// ({type: {configName: opts}}) provider shapes (spec §6).
type rawConfigDoc struct {
	Timeout         int64                             `yaml:"timeout"`
	Providers       map[string]map[string]interface{} `yaml:"providers"`
	DefaultProvider string                             `yaml:"defaultProvider"`
	DefaultModel    string                             `yaml:"defaultModel"`
	ModelSeed       interface{}                        `yaml:"modelSeed"`
	Options         map[string]interface{}             `yaml:"options"`
	RegistryOptions map[string]interface{}             `yaml:"registryOptions"`
	Tools           *ToolsConfig                       `yaml:"tools"`
	RateLimitPolicy *RateLimitPolicy                   `yaml:"rateLimitPolicy"`
}

// LoadBridgeConfig reads a YAML configuration file, optionally loading a
// sibling .env via godotenv first, and returns a validated config
// (grounded on the teacher's LoadAgentConfig/LoadAgentConfigWithEnvOverrides).
func LoadBridgeConfig(path string, envFile string) (*BridgeClientConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, NewInvalidConfigError(fmt.Sprintf("failed to load env file: %v", err))
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewInvalidConfigError(fmt.Sprintf("failed to read config file: %v", err))
	}

	var doc rawConfigDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, NewInvalidConfigError(fmt.Sprintf("failed to parse YAML: %v", err))
	}

	cfg := &BridgeClientConfig{
		Timeout:         doc.Timeout,
		RawProviders:    doc.Providers,
		DefaultProvider: doc.DefaultProvider,
		DefaultModel:    doc.DefaultModel,
		Options:         doc.Options,
		RegistryOptions: doc.RegistryOptions,
		ToolsConfig:     doc.Tools,
		RateLimitPolicy: doc.RateLimitPolicy,
		ModelSeed:       parseModelSeed(doc.ModelSeed),
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseModelSeed(raw interface{}) ModelSeed {
	switch v := raw.(type) {
	case string:
		switch v {
		case "none":
			return ModelSeed{Mode: ModelSeedNone}
		default:
			return ModelSeed{Mode: ModelSeedBuiltin}
		}
	case map[string]interface{}:
		if p, ok := v["path"].(string); ok {
			return ModelSeed{Mode: ModelSeedCustom, Path: p}
		}
		return ModelSeed{Mode: ModelSeedCustom}
	default:
		return ModelSeed{Mode: ModelSeedBuiltin}
	}
}

// applyEnvOverrides mirrors LoadAgentConfigWithEnvOverrides: BRIDGE_*
// environment variables take precedence over file-supplied values.
func applyEnvOverrides(cfg *BridgeClientConfig) {
	if v := os.Getenv("BRIDGE_DEFAULT_MODEL"); v != "" {
		cfg.DefaultModel = v
	}
	if v := os.Getenv("BRIDGE_DEFAULT_PROVIDER"); v != "" {
		cfg.DefaultProvider = v
	}
	if v := os.Getenv("BRIDGE_TIMEOUT_MS"); v != "" {
		if t, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Timeout = t
		}
	}
}

// Validate implements the spec §4.1 configuration validation pipeline:
// flatten providers, resolve defaultProvider, bound timeout, and freeze
// the result. Safe to call more than once; re-validating an already
// validated config is a no-op that returns nil.
func (c *BridgeClientConfig) Validate() error {
	if c.validated {
		return nil
	}

	flattened, err := flattenProviders(c.RawProviders)
	if err != nil {
		return err
	}
	c.Providers = flattened

	if len(flattened) == 0 {
		return NewInvalidConfigError("providers configuration must define at least one provider")
	}

	resolved, err := resolveDefaultProvider(c.DefaultProvider, flattened)
	if err != nil {
		return err
	}
	c.DefaultProvider = resolved

	if c.Timeout == 0 {
		c.Timeout = defaultTimeoutMs
	}
	if c.Timeout < minTimeoutMs || c.Timeout > maxTimeoutMs {
		return NewInvalidConfigError(fmt.Sprintf("timeout must be within [%d, %d] milliseconds, got %d", minTimeoutMs, maxTimeoutMs, c.Timeout))
	}

	if c.DefaultModel == "" {
		c.DefaultModel = defaultModelID
	}
	if c.ModelSeed.Mode == "" {
		c.ModelSeed = ModelSeed{Mode: ModelSeedBuiltin}
	}

	c.validated = true
	return nil
}

// flattenProviders normalizes the caller's flat-or-nested provider shape
// into "type.configName" keys (spec §4.1, §6). A body for a type is
// nested only when every one of its values is itself a
// map[string]interface{} (see isNestedProviderConfig); any scalar option
// value (apiKey, baseUrl...) makes it a flat config, stored under
// "type.default".
func flattenProviders(raw map[string]map[string]interface{}) (map[string]map[string]interface{}, error) {
	out := make(map[string]map[string]interface{})
	for providerType, body := range raw {
		if len(body) == 0 {
			return nil, NewInvalidConfigError(fmt.Sprintf("provider %q has no configurations defined", providerType))
		}
		if isNestedProviderConfig(body) {
			for configName, v := range body {
				nested, ok := v.(map[string]interface{})
				if !ok {
					return nil, NewInvalidConfigError(fmt.Sprintf("provider %q configuration %q must be an object", providerType, configName))
				}
				if len(nested) == 0 {
					return nil, NewInvalidConfigError(fmt.Sprintf("provider %q configuration %q has no configurations defined", providerType, configName))
				}
				out[providerType+"."+configName] = nested
			}
			continue
		}
		out[providerType+".default"] = body
	}
	return out, nil
}

// isNestedProviderConfig heuristically distinguishes
// {type: {opt: val}} (flat) from {type: {configName: {opt: val}}}
// (nested): nested form has every value itself a map[string]interface{}.
// Empty inner maps are rejected later by flattenProviders.
func isNestedProviderConfig(body map[string]interface{}) bool {
	if len(body) == 0 {
		return false
	}
	for _, v := range body {
		if _, ok := v.(map[string]interface{}); !ok {
			return false
		}
	}
	return true
}

// resolveDefaultProvider implements the §4.1 defaultProvider resolution
// rule set, including the legacy single-config exception preserved per
// the §9 Open Question decision.
func resolveDefaultProvider(requested string, flattened map[string]map[string]interface{}) (string, error) {
	if requested == "" {
		for _, key := range sortedKeys(flattened) {
			return key, nil
		}
		return "", NewInvalidConfigError("providers configuration must define at least one provider")
	}
	if _, ok := flattened[requested]; ok {
		return requested, nil
	}

	var matches []string
	prefix := requested + "."
	for _, key := range sortedKeys(flattened) {
		if strings.HasPrefix(key, prefix) {
			matches = append(matches, key)
		}
	}
	switch len(matches) {
	case 0:
		return "", NewInvalidConfigError(fmt.Sprintf("defaultProvider %q not found in providers configuration", requested))
	case 1:
		return matches[0], nil
	default:
		return "", NewInvalidConfigError(fmt.Sprintf("defaultProvider %q matches multiple configurations", requested))
	}
}

func sortedKeys(m map[string]map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
