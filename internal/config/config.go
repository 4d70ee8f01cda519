// Package config consolidates every environment-driven setting into one
// typed struct loaded once at process start, replacing the "mixed feature
// flags scattered across modules" anti-pattern flagged in spec.md's design
// notes. Apart from ASSISTANT_ENV_FILE, which cmd/assistant-server reads to
// locate the optional .env file, nothing outside this package reads an
// environment variable.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// NetworkMode gates outbound-API tools process-wide (spec.md §4.1).
type NetworkMode string

const (
	// NetworkOnline allows every tool network_type.
	NetworkOnline NetworkMode = "online"
	// NetworkOffline disables external_api tools; external_download remains
	// available because one-way ingress does not exfiltrate local data.
	NetworkOffline NetworkMode = "offline"
)

// Feature is a named runtime-togglable capability.
type Feature string

const (
	// FeatureDynamicHITL enables Supervisor/handler-initiated HITL checkpoints.
	FeatureDynamicHITL Feature = "dynamic_hitl"
	// FeaturePauseButton enables POST /workflow/pause/{id}.
	FeaturePauseButton Feature = "pause_button"
)

// Config is the single typed configuration object for the process. It is
// constructed once via Load and then passed by reference into every
// component that needs it; runtime mutation goes through SetNetworkMode and
// SetFeature, both of which log the change, never silently.
type Config struct {
	mu sync.RWMutex

	NetworkMode NetworkMode

	LLMProvider  string // anthropic | openai
	LLMEndpoint  string
	LLMModel     string
	LLMAPIKey    string
	LLMEndpoints []string

	DefaultWorkspace string
	WorkspaceRoot    string
	DataRoot         string

	MaxParallelStages  int
	MaxActiveWorkflows int
	MaxRetries         int
	MaxRefinements     int
	MaxPlanRevisions   int

	StageTimeout     time.Duration
	WorkflowDeadline time.Duration

	MaxSessionsCached int
	SessionTTL        time.Duration

	ContextMaxEntries int
	ContextMaxBytes   int64
	WorkflowMemoryCap int64

	HTTPAddr string

	ConversationBackend string // memory | mongo | sqlite
	CheckpointBackend   string // memory | mongo | postgres
	EngineBackend       string // inmem | temporal

	MongoURI      string
	MongoDatabase string
	PostgresDSN   string
	SQLitePath    string
	TemporalHost  string

	features map[Feature]bool
}

// Load reads .env (if present, ignored when absent) and then the process
// environment, applying the defaults named throughout spec.md, and returns a
// ready-to-use Config. It never panics; invalid numeric/duration values fall
// back to their documented default and are reported via onWarn if non-nil.
func Load(onWarn func(msg string)) (*Config, error) {
	_ = godotenv.Load() // optional; absence is not an error

	warn := func(string) {}
	if onWarn != nil {
		warn = onWarn
	}

	c := &Config{
		NetworkMode: NetworkMode(getString("NETWORK_MODE", string(NetworkOnline))),

		LLMProvider:  getString("LLM_PROVIDER", "anthropic"),
		LLMEndpoint:  os.Getenv("LLM_ENDPOINT"),
		LLMModel:     os.Getenv("LLM_MODEL"),
		LLMAPIKey:    os.Getenv("LLM_API_KEY"),
		LLMEndpoints: splitCSV(os.Getenv("LLM_ENDPOINTS")),

		DefaultWorkspace: getString("DEFAULT_WORKSPACE", "workspace_root"),
		WorkspaceRoot:    getString("WORKSPACE_ROOT", "workspace_root"),
		DataRoot:         getString("DATA_ROOT", "data"),

		MaxParallelStages:  getInt("MAX_PARALLEL_AGENTS", 2, warn),
		MaxActiveWorkflows: getInt("MAX_ACTIVE_WORKFLOWS", 10, warn),
		MaxRetries:         getInt("MAX_RETRIES", 1, warn),
		MaxRefinements:     getInt("MAX_REFINEMENT_ITERATIONS", 3, warn),
		MaxPlanRevisions:   getInt("MAX_PLAN_REVISIONS", 1, warn),

		StageTimeout:     getDuration("STAGE_TIMEOUT", 120*time.Second, warn),
		WorkflowDeadline: getDuration("WORKFLOW_DEADLINE", 30*time.Minute, warn),

		MaxSessionsCached: getInt("MAX_SESSIONS_CACHED", 100, warn),
		SessionTTL:        getDuration("SESSION_TTL", time.Hour, warn),

		ContextMaxEntries: getInt("CONTEXT_MAX_ENTRIES", 256, warn),
		ContextMaxBytes:   int64(getInt("CONTEXT_MAX_BYTES", 4*1024*1024, warn)),
		WorkflowMemoryCap: int64(getInt("WORKFLOW_MEMORY_CAP_BYTES", 64*1024*1024, warn)),

		HTTPAddr: getString("HTTP_ADDR", ":8080"),

		ConversationBackend: getString("CONVERSATION_BACKEND", "memory"),
		CheckpointBackend:   getString("CHECKPOINT_BACKEND", "memory"),
		EngineBackend:       getString("ENGINE_BACKEND", "inmem"),

		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDatabase: getString("MONGO_DATABASE", "assistant"),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		SQLitePath:    getString("SQLITE_PATH", "assistant.db"),
		TemporalHost:  getString("TEMPORAL_HOST", "127.0.0.1:7233"),

		features: map[Feature]bool{
			FeatureDynamicHITL: getBool("ENABLE_DYNAMIC_HITL", false, warn),
			FeaturePauseButton: getBool("ENABLE_PAUSE_BUTTON", false, warn),
		},
	}

	if c.NetworkMode != NetworkOnline && c.NetworkMode != NetworkOffline {
		warn(fmt.Sprintf("NETWORK_MODE=%q is invalid, defaulting to online", c.NetworkMode))
		c.NetworkMode = NetworkOnline
	}

	return c, nil
}

// GetNetworkMode returns the current network mode. Safe for concurrent use;
// the tool registry's offline check at both get_tool and execute time reads
// through this accessor.
func (c *Config) GetNetworkMode() NetworkMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.NetworkMode
}

// SetNetworkMode flips the process-wide network mode. log receives a record
// of the transition; runtime flips are never silent.
func (c *Config) SetNetworkMode(mode NetworkMode, log func(from, to NetworkMode)) {
	c.mu.Lock()
	prev := c.NetworkMode
	c.NetworkMode = mode
	c.mu.Unlock()
	if log != nil && prev != mode {
		log(prev, mode)
	}
}

// Feature reports whether the named feature flag is enabled.
func (c *Config) Feature(f Feature) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.features[f]
}

// SetFeature toggles a feature flag at runtime, logging the transition.
func (c *Config) SetFeature(f Feature, enabled bool, log func(feature Feature, enabled bool)) {
	c.mu.Lock()
	c.features[f] = enabled
	c.mu.Unlock()
	if log != nil {
		log(f, enabled)
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int, warn func(string)) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		warn(fmt.Sprintf("%s=%q is not a valid integer, using default %d", key, v, def))
		return def
	}
	return n
}

func getDuration(key string, def time.Duration, warn func(string)) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		warn(fmt.Sprintf("%s=%q is not a valid duration, using default %s", key, v, def))
		return def
	}
	return d
}

func getBool(key string, def bool, warn func(string)) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		warn(fmt.Sprintf("%s=%q is not a valid bool, using default %v", key, v, def))
		return def
	}
	return b
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
