// Package config loads and resolves runledger configuration.
//
// # Configuration Precedence
//
// Values are resolved in this order (highest to lowest priority):
//
//  1. CLI flags (--module, --log-level, --history, --reports-dir, ...)
//  2. Environment variables (RUNLEDGER_*, plus NO_COLOR)
//  3. YAML config file (.runledger.yaml in the working directory, then
//     $XDG_CONFIG_HOME/runledger/.runledger.yaml)
//  4. Hardcoded defaults
//
// # Environment Variables
//
//   - RUNLEDGER_LOG_LEVEL: debug, info, warn or error
//   - RUNLEDGER_MODULES: comma separated module markers
//   - RUNLEDGER_SELECTION: marker expression passed to the runner
//   - RUNLEDGER_HISTORY_BACKEND, RUNLEDGER_HISTORY_DSN: trend store
//   - RUNLEDGER_REPORTS_DIR: where reports are written
//   - RUNLEDGER_WEBHOOK_URL: summary notification target
//   - RUNLEDGER_VIDEO: record video in the child ("true"/"false")
//   - RUNLEDGER_NO_COLOR or NO_COLOR: disable colors
package config
