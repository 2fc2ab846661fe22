// Package logx configures raidwatch's structured logging.
//
// It wraps zerolog so that:
//   - console output stays readable (short timestamp + short caller)
//   - file output is JSON
//   - an optional chat sink (Discord log channel or Telegram) receives
//     warnings and errors, filtered by level and rate limited
package logx
