package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	OpenAI    OpenAIConfig
	Tavily    TavilyConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
	// APIToken protects the HTTP API with bearer auth. Empty disables
	// auth, intended for local development only.
	APIToken string
}

type OpenAIConfig struct {
	APIKey string
	// SupervisorModel handles routing decisions and user-facing replies.
	SupervisorModel string
	// AgentModel runs the specialized agents' reasoning loops.
	AgentModel string
	EmbedModel string
	// RerankModel scores (query, chunk) pairs during retrieval reranking.
	RerankModel string
}

type TavilyConfig struct {
	APIKey     string
	MaxResults int
}

type StorageConfig struct {
	DataDir string
}

type RetrievalConfig struct {
	TopK             int
	LexicalWeight    float64
	SemanticWeight   float64
	RerankingTimeout string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		OpenAI: OpenAIConfig{
			SupervisorModel: "gpt-4.1-mini",
			AgentModel:      "gpt-4.1-nano",
			EmbedModel:      "text-embedding-3-small",
			RerankModel:     "gpt-4.1-nano",
		},
		Tavily: TavilyConfig{
			MaxResults: 3,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Retrieval: RetrievalConfig{
			TopK:             5,
			LexicalWeight:    0.3,
			SemanticWeight:   0.7,
			RerankingTimeout: "5s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "concierge")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".concierge"
	}
	return filepath.Join(home, ".local", "share", "concierge")
}

// Load reads configuration from an optional .env file in the working
// directory and CONCIERGE_* environment variables, applied on top of
// built-in defaults.
//
// Both API keys are hard requirements: the reasoning pipeline cannot
// construct without them, so a missing key fails Load rather than
// degrading later.
func Load() (Config, error) {
	_ = godotenv.Load()
	return loadFromEnv(os.Getenv)
}

func loadFromEnv(getenv func(string) string) (Config, error) {
	cfg := defaults()

	if err := applyEnvOverrides(&cfg, getenv); err != nil {
		return Config{}, err
	}

	if cfg.OpenAI.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: OpenAI API key (set CONCIERGE_OPENAI_API_KEY)")
	}
	if cfg.Tavily.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: Tavily API key (set CONCIERGE_TAVILY_API_KEY)")
	}
	if cfg.Retrieval.LexicalWeight+cfg.Retrieval.SemanticWeight <= 0 {
		return Config{}, fmt.Errorf("invalid retrieval weights: lexical=%v semantic=%v", cfg.Retrieval.LexicalWeight, cfg.Retrieval.SemanticWeight)
	}

	return cfg, nil
}
