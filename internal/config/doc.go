// Package config provides centralized configuration management for tradelens.
// It loads configuration from several sources, validates it and exposes a
// type-safe API to the rest of the application.
//
// # Configuration Sources
//
// Configuration is loaded in increasing order of precedence:
//
//	1. Default values (Default)
//	2. YAML file: $TRADELENS_CONFIG, or ./tradelens.yaml when present
//	3. .env file in the working directory (does not override the process environment)
//	4. Environment variables
//
// # Environment Variables
//
// All environment variables follow the pattern TRADELENS_<SECTION>_<KEY>:
//
//	TRADELENS_SERVER_PORT=8080
//	TRADELENS_LOGGING_LEVEL=debug
//	TRADELENS_PIPELINE_TIMEZONE=Asia/Tokyo
//	TRADELENS_PIPELINE_ROW_ERROR_POLICY=abort
//	TRADELENS_CACHE_TTL=15m
//
// # Pipeline Section
//
// The pipeline section is converted into the explicit value the normalizer
// is constructed with:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	nc, err := cfg.Pipeline.NormalizerConfig()
//	if err != nil {
//	    return err
//	}
//	normalizer, err := dataprocessing.NewNormalizer(nc, logger)
//
// # Validation
//
// Struct fields carry go-playground/validator tags; Validate additionally
// checks that the pipeline timezone exists and that file logging has a path.
package config
