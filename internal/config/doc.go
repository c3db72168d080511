// Package config loads and watches the sheetpulse configuration file.
//
// Top-level types:
//   - Config — log level, chart period, feishu credentials, source, businesses,
//     compare, cache, push, server and storage sections
//   - Business — human-readable business line name and its worksheet id
//   - FeishuConfig — app id/secret env var names and the spreadsheet token;
//     AppID() and AppSecret() resolve from environment variables
//   - WebhookConfig — delivery target type (feishu|slack|teams|http) and its
//     URL, resolved from url_env or given literally
//
// Load(path) reads the YAML file, applies defaults (60s cache, port 8080,
// weekly period, the four default metrics), then validates required fields
// and enums.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It re-adds the watch after each
// event so the rename-then-create pattern of atomic-save editors keeps working.
package config
