package mcp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Server transport types for remote servers.
const (
	TypeStreamableHTTP = "STREAMABLE_HTTP"
	TypeSSE            = "SSE"
)

// ServerConfig describes one configured tool server. Command-based
// entries spawn a subprocess; URL-based entries connect over HTTP.
type ServerConfig struct {
	Name string `json:"-"`

	// Subprocess servers.
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// Remote servers.
	Type        string            `json:"type,omitempty"`
	URL         string            `json:"url,omitempty"`
	BearerToken string            `json:"bearerToken,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// configFile is the on-disk shape: {"mcpServers": {"name": {...}}}.
type configFile struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

// LoadServersFile reads the tool server configuration. ${NAME}
// references in string values are expanded from the environment. A
// missing file yields an empty list.
func LoadServersFile(path string, logger *slog.Logger) ([]ServerConfig, error) {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Info("no tool server config", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tool server config: %w", err)
	}

	var cfg configFile
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse tool server config %s: %w", path, err)
	}

	var servers []ServerConfig
	for name, sc := range cfg.MCPServers {
		sc.Name = name
		expandServerEnv(&sc)

		if sc.Command == "" && sc.URL == "" {
			logger.Warn("skipping tool server with neither command nor url", "name", name)
			continue
		}
		servers = append(servers, sc)
	}

	logger.Info("loaded tool server config", "path", path, "servers", len(servers))
	return servers, nil
}

// NewTransport builds the transport for a server config.
func NewTransport(sc ServerConfig, logger *slog.Logger) (Transport, error) {
	if sc.Command != "" {
		env := make([]string, 0, len(sc.Env))
		for k, v := range sc.Env {
			env = append(env, k+"="+v)
		}
		return NewStdioTransport(StdioConfig{
			Command: sc.Command,
			Args:    sc.Args,
			Env:     env,
			Logger:  logger,
		}), nil
	}

	switch sc.Type {
	case "", TypeStreamableHTTP, TypeSSE:
	default:
		return nil, fmt.Errorf("unknown tool server type %q for %s", sc.Type, sc.Name)
	}

	headers := make(map[string]string, len(sc.Headers)+1)
	for k, v := range sc.Headers {
		headers[k] = v
	}
	if sc.BearerToken != "" {
		headers["Authorization"] = "Bearer " + sc.BearerToken
	}

	return NewHTTPTransport(HTTPConfig{
		URL:     sc.URL,
		Headers: headers,
		SSE:     sc.Type == TypeSSE,
		Logger:  logger,
	}), nil
}

// expandServerEnv substitutes ${NAME} in every string value.
func expandServerEnv(sc *ServerConfig) {
	sc.Command = expandEnvRefs(sc.Command)
	sc.URL = expandEnvRefs(sc.URL)
	sc.BearerToken = expandEnvRefs(sc.BearerToken)
	for i, a := range sc.Args {
		sc.Args[i] = expandEnvRefs(a)
	}
	for k, v := range sc.Env {
		sc.Env[k] = expandEnvRefs(v)
	}
	for k, v := range sc.Headers {
		sc.Headers[k] = expandEnvRefs(v)
	}
}

// envRefRe matches ${NAME} references.
var envRefRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvRefs expands ${NAME} only; bare $NAME is left untouched so
// literal dollar values survive.
func expandEnvRefs(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return envRefRe.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
}
