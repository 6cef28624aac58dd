// Package config loads and watches the phenowatch configuration file.
//
// Top-level types:
//   - Config{Source, Analysis, Server, Alerts, History}: full tree parsed from YAML
//   - SourceConfig: path | url, format (auto|csv|xlsx|xls), sheet, week_layout,
//     refresh_interval, auth, tls
//   - AnalysisConfig: zero_total (error|zero) and optional alert rule overrides;
//     ComputeRules() converts them for the compute engine
//   - ServerConfig: http_addr, grpc_port (0 disables), auth, broadcast_interval, ui_dir
//   - AlertsConfig: webhooks (slack|teams|http), digest_schedule (cron), timeout
//   - HistoryConfig: backend (memory|sqlite), path
//
// Secrets are never stored in the file: key_env, token_env, password_env and
// url_env name environment variables that are resolved at use time.
//
// Load(path) reads the file, applies defaults, validates enums and resolves
// relative paths against the config file's directory.
//
// Watch(ctx, path, onChange) reloads the file on every save and keeps the
// previous config when the new one is invalid.
package config
