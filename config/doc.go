// Package config loads consulagent configuration.
//
// Values are resolved with this precedence, highest first:
//
//  1. command-line flags bound with WithFlags
//  2. environment variables with the CONSULAGENT_ prefix, dots replaced by
//     underscores (CONSULAGENT_BACKEND_ADDRESS for backend.address)
//  3. a .env file (./.env or WithEnvFile); it never overrides the real environment
//  4. a YAML config file (WithConfigFile, or the first of ./consulagent.yml,
//     ./config/consulagent.yml, /etc/consulagent/consulagent.yml)
//  5. Defaults()
//
// Usage:
//
//	cfg, err := config.Load(config.WithConfigFile(path), config.WithFlags(fs))
package config
