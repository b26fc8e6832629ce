// Package config handles configuration loading for taskd.
//
// # Configuration File
//
// The file is YAML unless its name ends in .toml. Default location, in order:
//
//  1. Path from the --config flag
//  2. Path from TASKD_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/taskd/taskd.yaml (or ~/.config/taskd/taskd.yaml)
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${TASKD_JWT_SECRET}"
//
// Unset variables expand to the empty string. TASKD_DB_PATH, when set,
// overrides database.path.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  token_ttl: "4h"
//	idempotency:
//	  ttl: "24h"
//
// # Example
//
//	server:
//	  grpc_addr: "127.0.0.1:50051"
//	  http_addr: "127.0.0.1:8080"
//	  cors_origins: ["*"]
//	database:
//	  path: "~/.local/share/taskd/tasks.db"
//	auth:
//	  jwt_secret: "${TASKD_JWT_SECRET}"
//	logging:
//	  level: info
//	  format: text
package config
