// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent}: full config tree parsed from YAML
//   - AgentConfig: server_endpoint, principal_id, buffer_size, spool, server_auth, log
//   - SpoolConfig: dir, pattern (*.jsonl), poll_interval, offsets_file
//   - AuthConfig: mode (mtls|apikey|none), cert/key/ca files, header, key_env;
//     Key() resolves from the environment
//
// Load(path) reads the YAML file, applies defaults (1000 buffer, 2s poll,
// x-api-key header, info logging), then validates required fields and enums.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It watches the parent directory, so
// atomic-save editors that rename over the file are covered, and waits for a
// short quiet period before reloading.
package config
