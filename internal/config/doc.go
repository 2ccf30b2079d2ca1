// Package config loads the console's TOML configuration.
//
// # Configuration Discovery
//
// Load follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/ssportal/config.toml
//  3. If the file doesn't exist, start from Defaults()
//  4. Zero, negative or blank values keep their defaults (except
//     cache.error_ttl_ms, where a negative value disables error caching)
//
// After the file, credentials are overridden from a .env file in the same
// directory (read with godotenv, never exported into the process) and then
// from the environment:
//
//   - SSPORTAL_API_URL
//   - SSPORTAL_API_TOKEN
//   - SSPORTAL_OPERATOR
//
// # File Format
//
//	api_url   = "https://portal.example.rw"
//	api_token = ""
//	operator  = "agent.k"
//	log_dir   = "~/.local/share/ssportal/logs"
//	log_level = "info"
//
//	[queue]
//	max_concurrent      = 3
//	processing_delay_ms = 300
//
//	[cache]
//	default_ttl_ms = 30000
//	error_ttl_ms   = 5000
//
//	[notifications]
//	max_per_minute     = 5
//	tag_cooldown_ms    = 120000
//	grouping_window_ms = 300000
//	grouping_threshold = 3
//	retention_ms       = 3600000
//
//	[polling]
//	interval_ms          = 120000
//	throttle_ms          = 15000
//	visibility_settle_ms = 3000
//	startup_delay_ms     = 5000
//
// Durations are written as integer milliseconds and exposed as
// time.Duration.
//
// # Path Expansion
//
// Paths beginning with ~ are expanded against the user's home directory and
// made absolute. LogPath returns <log_dir>/ssportal.log.
//
// # Errors
//
// A missing file is not an error. Open, read and parse failures are wrapped
// ("open config: ...", "read config: ...", "parse config: ..."), as is an
// unreadable .env file.
//
// The merged result is checked with Config.Validate (go-playground/validator
// struct tags): api_url and log_dir must be set, log_level must be one of
// debug, info, warn or error, max_concurrent and max_per_minute at least 1,
// grouping_threshold at least 2 and the poll interval at least a second.
// All violations are reported together as "invalid config: ...".
package config
