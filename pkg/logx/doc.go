// Package logx is a thin structured logger over zerolog.
//
// Console output is human readable with a short caller; the file sink writes
// JSON lines. Loggers handed out by a Service pick up sink and level changes
// from Service.Apply, which is how config reloads reach every component.
package logx
