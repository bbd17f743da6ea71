// Package config loads gatekeeper configuration from YAML and the environment.
//
// # Loading
//
// LoadConfig reads a YAML file, fills unset fields with defaults and
// validates the result:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("gatekeeper.yaml")
//
// Environment variables named GATEKEEPER_SECTION_FIELD override file values
// (for example GATEKEEPER_SERVER_LISTEN_ADDRESS). Two variables keep their
// historical names: TRUST_PROXY and AI_DAILY_TOKEN_LIMIT. LoadDotEnv loads a
// .env file into the environment before any of this happens.
//
// # Example
//
//	server:
//	  listen_address: "127.0.0.1:8080"
//	  throttle_api: true
//	limits:
//	  daily_token_limit: 2000000
//	  trust_proxy: false
//	  reservation_timeout: 5m
//	storage:
//	  backend: sql
//	  sql:
//	    driver: sqlite
//	    path: data/gatekeeper.db
//	telemetry:
//	  logging:
//	    level: info
//	    format: json
//	  tracing:
//	    enabled: true
//	    endpoint: otel-collector:4317
//	    insecure: true
//	    sampler: ratio
//	    sample_ratio: 0.1
//
// # Hot Reload
//
// Watcher re-reads the file on change and applies the runtime-tunable
// settings (daily token limit and trust proxy) to a running engine. Every
// other setting needs a restart.
package config
