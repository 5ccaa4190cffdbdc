// Package config provides 12-factor configuration for embedding the SDK.
//
// Configuration is loaded from FAULTLINE_* environment variables with
// sensible defaults. A TOML file (a .faultlinerc) can seed the same settings
// for tooling like cmd/probe; file values are overlaid on the defaults and
// explicit flags/env take precedence at the call site.
//
// Environment Variables:
//   - FAULTLINE_DSN, FAULTLINE_DEBUG
//   - FAULTLINE_ENVIRONMENT, FAULTLINE_RELEASE
//   - FAULTLINE_SAMPLE_RATE, FAULTLINE_TRACES_SAMPLE_RATE
//   - FAULTLINE_MAX_SPANS, FAULTLINE_MAX_BREADCRUMBS
//   - FAULTLINE_QUEUE_SIZE, FAULTLINE_FLUSH_TIMEOUT
package config
