// Package config loads process configuration from the environment.
//
// Load reads an optional .env file in the working directory with godotenv
// and then resolves each setting from environment variables, falling back
// to defaults:
//
//	GOCONTEXT_DB_PATH              ~/.gocontext/graph.db
//	GOCONTEXT_EMBEDDING_PROVIDER   jina, openai or local; empty picks by available API key
//	JINA_API_KEY, OPENAI_API_KEY   provider credentials
//	GOCONTEXT_RRF_K                60
//	GOCONTEXT_SEMANTIC_WEIGHT      0.7
//	GOCONTEXT_LEXICAL_WEIGHT       0.3
//	GOCONTEXT_STRATEGY             extended (direct, extended, deep, custom:N)
//	GOCONTEXT_MAX_RELATED          10
//	GOCONTEXT_WORKERS              number of CPUs
//	GOCONTEXT_CACHE_SIZE           1000
//	GOCONTEXT_LOG_LEVEL            info
//
// Unparseable or out-of-range values return ErrInvalidConfig naming the
// variable. Every bad value is reported, not only the first.
package config
