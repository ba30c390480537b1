package config

import (
	"fmt"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	env   string
	typ   keyType
	apply func(cfg *Config, v any)
}

var specs = []keySpec{
	{
		env: "CONCIERGE_SERVER_PORT", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
	},
	{
		env: "CONCIERGE_API_TOKEN", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
	},
	{
		env: "CONCIERGE_OPENAI_API_KEY", typ: kString,
		apply: func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
	},
	{
		env: "CONCIERGE_OPENAI_SUPERVISOR_MODEL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.OpenAI.SupervisorModel = v.(string) },
	},
	{
		env: "CONCIERGE_OPENAI_AGENT_MODEL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.OpenAI.AgentModel = v.(string) },
	},
	{
		env: "CONCIERGE_OPENAI_EMBED_MODEL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.OpenAI.EmbedModel = v.(string) },
	},
	{
		env: "CONCIERGE_OPENAI_RERANK_MODEL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.OpenAI.RerankModel = v.(string) },
	},
	{
		env: "CONCIERGE_TAVILY_API_KEY", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Tavily.APIKey = v.(string) },
	},
	{
		env: "CONCIERGE_TAVILY_MAX_RESULTS", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Tavily.MaxResults = v.(int) },
	},
	{
		env: "CONCIERGE_STORAGE_DATA_DIR", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
	},
	{
		env: "CONCIERGE_RETRIEVAL_TOP_K", typ: kInt,
		apply: func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
	},
	{
		env: "CONCIERGE_RETRIEVAL_LEXICAL_WEIGHT", typ: kFloat,
		apply: func(cfg *Config, v any) { cfg.Retrieval.LexicalWeight = v.(float64) },
	},
	{
		env: "CONCIERGE_RETRIEVAL_SEMANTIC_WEIGHT", typ: kFloat,
		apply: func(cfg *Config, v any) { cfg.Retrieval.SemanticWeight = v.(float64) },
	},
	{
		env: "CONCIERGE_RETRIEVAL_RERANKING_TIMEOUT", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Retrieval.RerankingTimeout = v.(string) },
	},
	{
		env: "CONCIERGE_LOG_LEVEL", typ: kString,
		apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
	},
}

func applyEnvOverrides(cfg *Config, getenv func(string) string) error {
	for _, spec := range specs {
		raw := getenv(spec.env)
		if raw == "" {
			continue
		}
		switch spec.typ {
		case kString:
			spec.apply(cfg, raw)
		case kInt:
			n, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("parsing %s=%q: %w", spec.env, raw, err)
			}
			spec.apply(cfg, n)
		case kFloat:
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return fmt.Errorf("parsing %s=%q: %w", spec.env, raw, err)
			}
			spec.apply(cfg, f)
		}
	}
	return nil
}
