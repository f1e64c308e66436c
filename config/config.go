// Package config loads agentengine settings from a YAML file overlaid with
// AGENTENGINE_* environment variables.
package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/hupe1980/agentengine/core"
	"github.com/hupe1980/agentengine/descriptor"
	"github.com/hupe1980/agentengine/graph"
	"github.com/hupe1980/agentengine/logging"
)

// EnvPrefix is the prefix of environment overrides. The first underscore
// after the prefix separates the section from the key, so
// AGENTENGINE_DEPLOYMENT_DISPLAY_NAME sets deployment.display_name.
const EnvPrefix = "AGENTENGINE_"

// Config is the complete agentengine configuration.
type Config struct {
	Project  string `koanf:"project"`
	Location string `koanf:"location"`
	// Endpoint overrides the regional service endpoint, e.g. a local emulator.
	Endpoint string `koanf:"endpoint"`
	// Resource is the resource name of a deployed graph to query.
	Resource string `koanf:"resource"`

	Deployment DeploymentConfig `koanf:"deployment"`
	Models     ModelsConfig     `koanf:"models"`
	Search     SearchConfig     `koanf:"search"`
	Log        LogConfig        `koanf:"log"`
	Server     ServerConfig     `koanf:"server"`

	Root   string            `koanf:"root"`
	Agents []graph.AgentSpec `koanf:"agents"`
}

// DeploymentConfig describes the source package and entrypoint to register.
type DeploymentConfig struct {
	DisplayName      string   `koanf:"display_name"`
	Description      string   `koanf:"description"`
	Source           string   `koanf:"source"`
	Module           string   `koanf:"module"`
	EntrypointObject string   `koanf:"entrypoint_object"`
	RequirementsFile string   `koanf:"requirements_file"`
	Packages         []string `koanf:"packages"`
	Framework        string   `koanf:"framework"` // google-adk, langchain, langgraph, ag2, llama-index, custom
	SessionMethods   bool     `koanf:"session_methods"`
}

// ModelsConfig selects the model provider and its credentials.
type ModelsConfig struct {
	Provider        string `koanf:"provider"` // gemini, openai, anthropic
	GeminiAPIKey    string `koanf:"gemini_api_key"`
	OpenAIAPIKey    string `koanf:"openai_api_key"`
	AnthropicAPIKey string `koanf:"anthropic_api_key"`
	// Vertex selects the Vertex AI backend for Gemini using project/location.
	Vertex bool `koanf:"vertex"`
}

// SearchConfig holds Programmable Search credentials for the search capability.
type SearchConfig struct {
	APIKey   string `koanf:"api_key"`
	EngineID string `koanf:"engine_id"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

// ServerConfig configures the local emulator.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// Load reads defaults, then the YAML file at path (optional), then the
// environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	_ = k.Set("location", "us-central1")
	_ = k.Set("deployment.module", descriptor.DefaultModule)
	_ = k.Set("deployment.framework", string(descriptor.FrameworkADK))
	_ = k.Set("models.provider", "gemini")
	_ = k.Set("log.level", "info")
	_ = k.Set("log.format", "text")
	_ = k.Set("server.addr", ":8080")

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	// 2. Load from ENV (AGENTENGINE_LOG_LEVEL -> log.level)
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	return &cfg, nil
}

func envKey(s string) string {
	return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Project) == "" {
		return core.NewValidationError("project", c.Project, "must not be empty")
	}
	if strings.TrimSpace(c.Location) == "" {
		return core.NewValidationError("location", c.Location, "must not be empty")
	}
	switch c.Models.Provider {
	case "gemini", "openai", "anthropic":
	default:
		return core.NewValidationError("models.provider", c.Models.Provider, "unknown provider (want gemini, openai or anthropic)")
	}
	return nil
}

// Graph builds the declared agent graph.
func (c *Config) Graph() (*graph.Graph, error) {
	return graph.FromSpecs(c.Agents, c.Root)
}

// Package returns the packaging metadata of the deployment.
func (c *Config) Package() descriptor.Package {
	return descriptor.Package{
		SourceLocation:   c.Deployment.Source,
		Module:           c.Deployment.Module,
		RequirementsFile: c.Deployment.RequirementsFile,
		Packages:         c.Deployment.Packages,
	}
}

// DescriptorOptions applies the deployment settings to descriptor options.
func (c *Config) DescriptorOptions() func(o *descriptor.Options) {
	return func(o *descriptor.Options) {
		if c.Deployment.DisplayName != "" {
			o.DisplayName = c.Deployment.DisplayName
		}
		if c.Deployment.Description != "" {
			o.Description = c.Deployment.Description
		}
		if c.Deployment.Framework != "" {
			o.Framework = descriptor.Framework(c.Deployment.Framework)
		}
		o.EntrypointObject = c.Deployment.EntrypointObject
		o.SessionMethods = c.Deployment.SessionMethods
	}
}

// Descriptor builds the deployment descriptor of g from the deployment settings.
func (c *Config) Descriptor(g *graph.Graph) (*descriptor.Descriptor, error) {
	return descriptor.Build(g, c.Package(), c.DescriptorOptions())
}

// Entrypoint returns the module:object serving the root of g.
func (c *Config) Entrypoint(g *graph.Graph) descriptor.Entrypoint {
	module := c.Deployment.Module
	if module == "" {
		module = descriptor.DefaultModule
	}
	object := c.Deployment.EntrypointObject
	if object == "" {
		object = g.Root().Name()
	}
	return descriptor.Entrypoint{Module: module, Object: object}
}

// Logger builds the logger described by the log settings, writing to w.
func (c *Config) Logger(w io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, core.NewValidationError("log.level", c.Log.Level, "%v", err)
	}

	cfg := logging.DefaultLoggerConfig()
	cfg.Level = level
	cfg.Format = c.Log.Format
	cfg.Output = w
	cfg.Component = "agentengine"

	return logging.NewLogger(cfg), nil
}
