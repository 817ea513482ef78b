// Package logx configures taskpool's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (millisecond timestamp + short file:line caller)
//   - File output JSON-structured
//   - Sinks and level swappable at runtime via Service.Apply
//
// The zero Logger is a safe no-op, so components can take one by value
// without nil checks.
package logx
