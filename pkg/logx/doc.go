// Package logx configures pockettodo's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional Telegram sink to an admin chat (min-level + rate limiting)
package logx
