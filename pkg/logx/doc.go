// Package logx configures gunter's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps console output
// readable (short timestamp, short caller) while file output stays JSON.
// Loggers derived from a Service follow Service.Apply across hot reloads.
package logx
