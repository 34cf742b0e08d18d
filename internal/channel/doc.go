// Package channel defines the contract shared by every publishing channel and
// the registry that picks one per (platform, kind).
//
// Concrete channels live in subpackages: webhook (workflow relay), api
// (direct platform calls) and automation (scripted browser).
package channel
