// Package config defines the process configuration and loads it from the
// environment. There is no required YAML file for the orchestration core:
// the role-pack contract template is the only structured config, and it is
// optional.
package config

// ProviderConfig holds connection details for one LLM provider backend.
type ProviderConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// AnthropicPromptCacheConfig controls Anthropic's ephemeral prompt-cache
// scopes (system/tools/messages blocks marked cache_control).
type AnthropicPromptCacheConfig struct {
	Enabled       bool
	CacheSystem   bool
	CacheTools    bool
	CacheMessages bool
}

// AnthropicConfig is the Anthropic client's full construction config.
type AnthropicConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	PromptCache AnthropicPromptCacheConfig
	ExtraParams map[string]any
}

// OpenAIConfig is the OpenAI client's full construction config.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	LogPayloads bool
	ExtraParams map[string]any
}

// GoogleConfig is the Google Gemini client's full construction config.
type GoogleConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout int // seconds
}

// RoutingConfig assigns a provider/model pair to each graph node that calls
// an LLM, per spec.md §6 "Routing" env vars.
type RoutingConfig struct {
	PlannerProvider string
	PlannerModel    string
	IntentProvider  string
	IntentModel     string
	TextProvider    string
	TextModel       string
	RoleProvider    string
	RoleModel       string
	WebSupportModel string
	RAGSupportModel string
	VisionModel     string
}

// TimeoutConfig holds the pacing knobs from spec.md §6.
type TimeoutConfig struct {
	ImageTaskTimeoutSec    int
	ImageAPITimeoutSec     int
	InitialStartDelayMS    int
	InitialTokenDelayMS    int
	MetaStreamTokenDelayMS int
	ArxivStreamTokenDelay  int
	WebToolTimeoutSec      int
}

// KBConfig controls the knowledge-base retrieval index.
type KBConfig struct {
	RootPath      string
	ChunkSize     int
	ChunkOverlap  int
	CacheTTLSec   int
	CacheCap      int
	CacheEvictN   int
	VectorBackend string // "memory" | "qdrant"
	VectorDSN     string
	VectorIndex   string
}

// EmbeddingConfig configures the HTTP embedding endpoint used by the
// session RAG and knowledge-base RAG indexes to vectorize chunks.
type EmbeddingConfig struct {
	BaseURL   string
	Path      string
	Model     string
	APIKey    string
	APIHeader string // e.g. "Authorization" or a custom header name
	Timeout   int    // seconds
	Dimension int
}

// ModelsConfig names the default model for each media-generation surface.
type ModelsConfig struct {
	ImageModel  string
	TTSModel    string
	VisionModel string
}

// TTSConfig configures the text-to-speech HTTP endpoint. BaseURL falls back
// to the OpenAI provider's BaseURL when unset; the API key always comes from
// the OpenAI provider config.
type TTSConfig struct {
	BaseURL string
	Voice   string
}

// ClickHouseConfig configures the optional audit sink.
type ClickHouseConfig struct {
	DSN            string
	Database       string
	AuditTable     string
	TimeoutSeconds int
}

// ObsConfig configures tracing.
type ObsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLP           string
	ClickHouse     ClickHouseConfig
}

// RedisConfig configures the optional distributed KB query-cache tier.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// S3Config configures the optional S3-backed object store.
type S3Config struct {
	Enabled   bool
	Endpoint  string
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
}

// Config is the process-wide configuration loaded once at startup.
type Config struct {
	Host string
	Port int

	Workdir  string
	LogPath  string
	LogLevel string

	LLMProvider string // default provider when a route doesn't specify one
	OpenAI      ProviderConfig
	Anthropic   ProviderConfig
	Google      ProviderConfig

	Routing   RoutingConfig
	Timeouts  TimeoutConfig
	KB        KBConfig
	Models    ModelsConfig
	TTS       TTSConfig
	Embedding EmbeddingConfig
	Obs       ObsConfig
	Redis     RedisConfig
	S3        S3Config

	TavilyAPIKey string

	GraphV2Enabled bool

	MaxHistoryMessages int
	MaxUserChars       int
	MaxAttachments     int
	SSERetryMS         int

	MaxToolParallelism int
}
