// Package config provides configuration loading for the athena daemons.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_PORT, GITHUB_TOKEN, SANDBOX_BASE_URL, ...)
//  2. YAML config file
//  3. Hardcoded defaults
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Config is the full configuration shared by both daemons. Each binary
// reads the sections it needs.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	GitHub    GitHubConfig    `koanf:"github"`
	LLM       LLMConfig       `koanf:"llm"`
	Redis     RedisConfig     `koanf:"redis"`
	Sandbox   SandboxConfig   `koanf:"sandbox"`
	Codegen   CodegenConfig   `koanf:"codegen"`
	Provision ProvisionConfig `koanf:"provision"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// LoggingConfig selects log level and encoder.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// GitHubConfig identifies the fixed service account used for every Git
// hosting operation.
type GitHubConfig struct {
	Token   Secret `koanf:"token"`
	Owner   string `koanf:"owner"`
	BaseURL string `koanf:"base_url"`
}

// RepoURL returns the clone URL for a repository owned by the service
// account.
func (c GitHubConfig) RepoURL(repo string) string {
	return fmt.Sprintf("https://github.com/%s/%s.git", c.Owner, repo)
}

// LLMConfig configures the text-completion backend.
type LLMConfig struct {
	APIKey      Secret   `koanf:"api_key"`
	BaseURL     string   `koanf:"base_url"`
	Model       string   `koanf:"model"`
	MaxTokens   int      `koanf:"max_tokens"`
	Temperature float64  `koanf:"temperature"`
	TopP        float64  `koanf:"top_p"`
	Timeout     Duration `koanf:"timeout"`
}

// RedisConfig configures the project registry store.
type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  Secret `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

// SandboxConfig configures the EC2-resident supervisor and the control
// plane's view of it.
type SandboxConfig struct {
	// BaseURL is how the control plane reaches the sandbox daemon.
	BaseURL string `koanf:"base_url"`
	// ControlPlaneURL is how the sandbox daemon reaches back into the
	// control plane for the initial codegen overlay.
	ControlPlaneURL string `koanf:"control_plane_url"`

	ProjectsDir      string   `koanf:"projects_dir"`
	CacheDir         string   `koanf:"cache_dir"`
	BasePort         int      `koanf:"base_port"`
	MaxPort          int      `koanf:"max_port"`
	MemoryLimitMB    int      `koanf:"memory_limit_mb"`
	SettleDelay      Duration `koanf:"settle_delay"`
	PropagationDelay Duration `koanf:"propagation_delay"`
	InstallTimeout   Duration `koanf:"install_timeout"`
	StaleDirAge      Duration `koanf:"stale_dir_age"`
}

// CodegenConfig bounds the change-application pipeline.
type CodegenConfig struct {
	Branch         string `koanf:"branch"`
	CommitPrefix   string `koanf:"commit_prefix"`
	ContextFileCap int    `koanf:"context_file_cap"`
}

// ProvisionConfig bounds the initial-codegen automation.
type ProvisionConfig struct {
	MaxAttempts int      `koanf:"max_attempts"`
	RetryDelay  Duration `koanf:"retry_delay"`
}

// Default returns the hardcoded defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 3000},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		GitHub: GitHubConfig{
			Owner:   "athena-service-account",
			BaseURL: "https://api.github.com/",
		},
		LLM: LLMConfig{
			Model:       "llama-3.3-70b-versatile",
			MaxTokens:   4000,
			Temperature: 0.7,
			TopP:        0.95,
			Timeout:     Duration(60 * time.Second),
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "athena:projects:",
		},
		Sandbox: SandboxConfig{
			ProjectsDir:      "/home/ubuntu/projects",
			CacheDir:         "/tmp/npm-cache",
			BasePort:         3001,
			MaxPort:          5000,
			MemoryLimitMB:    512,
			SettleDelay:      Duration(2 * time.Second),
			PropagationDelay: Duration(5 * time.Second),
			InstallTimeout:   Duration(2 * time.Minute),
			StaleDirAge:      Duration(2 * time.Hour),
		},
		Codegen: CodegenConfig{
			Branch:         "main",
			CommitPrefix:   "Athena: ",
			ContextFileCap: 40,
		},
		Provision: ProvisionConfig{
			MaxAttempts: 5,
			RetryDelay:  Duration(5 * time.Second),
		},
	}
}

// Load reads configuration from the YAML file at path (if it exists),
// then overrides with environment variables.
//
// Environment variables use underscore separators and are uppercased:
//
//	SERVER_PORT        -> server.port
//	GITHUB_TOKEN       -> github.token
//	SANDBOX_BASE_URL   -> sandbox.base_url
//	LLM_API_KEY        -> llm.api_key
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", transformEnvKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// knownSections are the top-level config keys an env var may target.
var knownSections = []string{
	"server", "logging", "github", "llm", "redis", "sandbox", "codegen", "provision",
}

// transformEnvKey maps SERVER_PORT to server.port, SANDBOX_BASE_URL to
// sandbox.base_url, and so on. Only the first underscore after a known
// section name becomes a separator; the rest of the key keeps its
// underscores.
func transformEnvKey(s string) string {
	lower := strings.ToLower(s)
	for _, section := range knownSections {
		prefix := section + "_"
		if strings.HasPrefix(lower, prefix) {
			return section + "." + lower[len(prefix):]
		}
	}
	// Not a config key for this service.
	return ""
}
