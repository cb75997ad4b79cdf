package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads configuration from environment variables (optionally from a
// local .env via godotenv.Overload, which lets repository-local config
// deterministically win over a stale shell environment in development).
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{}

	cfg.Host = firstNonEmpty(env("HOST"), "0.0.0.0")
	cfg.Port = envInt("PORT", 8090)

	cfg.Workdir = env("WORKDIR")
	cfg.LogPath = env("LOG_PATH")
	cfg.LogLevel = firstNonEmpty(env("LOG_LEVEL"), "info")

	cfg.LLMProvider = firstNonEmpty(strings.ToLower(env("LLM_PROVIDER")), "openai")
	cfg.OpenAI = ProviderConfig{
		APIKey:  env("OPENAI_API_KEY"),
		Model:   firstNonEmpty(env("OPENAI_MODEL"), "gpt-4o-mini"),
		BaseURL: env("OPENAI_BASE_URL"),
	}
	cfg.Anthropic = ProviderConfig{
		APIKey:  env("ANTHROPIC_API_KEY"),
		Model:   firstNonEmpty(env("ANTHROPIC_MODEL"), "claude-3-5-sonnet-latest"),
		BaseURL: env("ANTHROPIC_BASE_URL"),
	}
	cfg.Google = ProviderConfig{
		APIKey:  env("GOOGLE_LLM_API_KEY"),
		Model:   firstNonEmpty(env("GOOGLE_LLM_MODEL"), "gemini-2.0-flash"),
		BaseURL: env("GOOGLE_LLM_BASE_URL"),
	}

	cfg.Routing = RoutingConfig{
		PlannerProvider: firstNonEmpty(env("PLANNER_PROVIDER"), cfg.LLMProvider),
		PlannerModel:    env("PLANNER_MODEL"),
		IntentProvider:  firstNonEmpty(env("INTENT_PROVIDER"), cfg.LLMProvider),
		IntentModel:     env("INTENT_MODEL"),
		TextProvider:    firstNonEmpty(env("TEXT_PROVIDER"), cfg.LLMProvider),
		TextModel:       env("TEXT_MODEL"),
		RoleProvider:    firstNonEmpty(env("ROLE_PROVIDER"), cfg.LLMProvider),
		RoleModel:       env("ROLE_MODEL"),
		WebSupportModel: env("WEB_SUPPORT_MODEL"),
		RAGSupportModel: env("RAG_SUPPORT_MODEL"),
		VisionModel:     env("VISION_SUPPORT_MODEL"),
	}

	cfg.Timeouts = TimeoutConfig{
		ImageTaskTimeoutSec:    envInt("IMAGE_TASK_TIMEOUT_SEC", 90),
		ImageAPITimeoutSec:     envInt("IMAGE_API_TIMEOUT_SEC", 90),
		InitialStartDelayMS:    envInt("INITIAL_START_DELAY_MS", 0),
		InitialTokenDelayMS:    envInt("INITIAL_TOKEN_DELAY_MS", 0),
		MetaStreamTokenDelayMS: envInt("META_STREAM_TOKEN_DELAY_MS", 0),
		ArxivStreamTokenDelay:  envInt("ARXIV_STREAM_TOKEN_DELAY_MS", 0),
		WebToolTimeoutSec:      envInt("WEB_TOOL_TIMEOUT_SEC", 12),
	}

	cfg.KB = KBConfig{
		RootPath:      firstNonEmpty(env("KB_ROOT_PATH"), "knowledge-base"),
		ChunkSize:     envInt("KB_RAG_CHUNK_SIZE", 900),
		ChunkOverlap:  envInt("KB_RAG_CHUNK_OVERLAP", 150),
		CacheTTLSec:   envInt("KB_RAG_CACHE_TTL_SEC", 180),
		CacheCap:      envInt("KB_RAG_CACHE_CAP", 512),
		CacheEvictN:   envInt("KB_RAG_CACHE_EVICT", 64),
		VectorBackend: firstNonEmpty(strings.ToLower(env("VECTOR_BACKEND")), "memory"),
		VectorDSN:     env("VECTOR_DSN"),
		VectorIndex:   firstNonEmpty(env("VECTOR_INDEX"), "knowledge-base"),
	}

	cfg.Models = ModelsConfig{
		ImageModel:  firstNonEmpty(env("IMAGE_MODEL"), "gpt-image-1"),
		TTSModel:    firstNonEmpty(env("TTS_MODEL"), "gpt-4o-mini-tts"),
		VisionModel: firstNonEmpty(env("VISION_MODEL"), cfg.Google.Model),
	}

	cfg.Obs = ObsConfig{
		ServiceName:    firstNonEmpty(env("OTEL_SERVICE_NAME"), "lanecore"),
		ServiceVersion: firstNonEmpty(env("SERVICE_VERSION"), "dev"),
		Environment:    firstNonEmpty(env("ENVIRONMENT"), "dev"),
		OTLP:           env("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ClickHouse: ClickHouseConfig{
			DSN:            env("CLICKHOUSE_DSN"),
			Database:       env("CLICKHOUSE_DATABASE"),
			AuditTable:     firstNonEmpty(env("CLICKHOUSE_AUDIT_TABLE"), "run_audit"),
			TimeoutSeconds: envInt("CLICKHOUSE_TIMEOUT_SECONDS", 5),
		},
	}

	cfg.Redis = RedisConfig{
		Enabled:  envBool("REDIS_ENABLED", false),
		Addr:     env("REDIS_ADDR"),
		Password: env("REDIS_PASSWORD"),
		DB:       envInt("REDIS_DB", 0),
	}

	cfg.S3 = S3Config{
		Enabled:   envBool("S3_ENABLED", false),
		Endpoint:  env("S3_ENDPOINT"),
		Region:    firstNonEmpty(env("S3_REGION"), "us-east-1"),
		Bucket:    env("S3_BUCKET"),
		Prefix:    env("S3_PREFIX"),
		AccessKey: env("S3_ACCESS_KEY"),
		SecretKey: env("S3_SECRET_KEY"),
	}

	cfg.TavilyAPIKey = env("TAVILY_API_KEY")
	cfg.GraphV2Enabled = envBool("GRAPH_V2_ENABLED", false)

	cfg.MaxHistoryMessages = envInt("MAX_HISTORY_MESSAGES", 30)
	cfg.MaxUserChars = envInt("MAX_USER_CHARS", 15000)
	cfg.MaxAttachments = envInt("MAX_ATTACHMENTS", 8)
	cfg.SSERetryMS = envInt("SSE_RETRY_MS", 1500)
	cfg.MaxToolParallelism = envInt("MAX_TOOL_PARALLELISM", 8)

	if cfg.OpenAI.APIKey == "" && cfg.Anthropic.APIKey == "" && cfg.Google.APIKey == "" {
		return Config{}, errors.New("at least one of OPENAI_API_KEY, ANTHROPIC_API_KEY, GOOGLE_LLM_API_KEY is required")
	}
	if cfg.Workdir == "" {
		return Config{}, errors.New("WORKDIR is required (set in .env or environment)")
	}
	absWD, err := filepath.Abs(cfg.Workdir)
	if err != nil {
		return Config{}, err
	}
	cfg.Workdir = absWD

	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envInt(key string, def int) int {
	v := env(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := env(key)
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
